package refmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/gauss"
	"github.com/san-kum/densfit/internal/grid"
	"github.com/san-kum/densfit/internal/lattice"
)

func TestBuildMatchesDirectSpread(t *testing.T) {
	tr, err := lattice.FromVoxelSize(dynamo.Vec3{2, 2, 2}, dynamo.Vec3{-10, -10, -10})
	require.NoError(t, err)
	shape, err := gauss.NewKernelShape(2, 4, tr.ScaleOperationOnly())
	require.NoError(t, err)
	ext := grid.Extents{14, 14, 14}

	x := []dynamo.Vec3{{0, 0, 0}, {1.5, -2, 3}}
	g, err := Build(x, []float64{1, 2}, shape, tr, ext)
	require.NoError(t, err)

	gt, err := gauss.New(ext, shape)
	require.NoError(t, err)
	gt.Add(gauss.Kernel{Position: dynamo.Vec3{5, 5, 5}, Amplitude: 1})
	gt.Add(gauss.Kernel{Position: dynamo.Vec3{5.75, 4, 6.5}, Amplitude: 2})

	assert.InDeltaSlice(t, gt.Data(), g.Values(), 1e-15)
	assert.InDelta(t, 3, g.Sum(), 1e-3)
	assert.Equal(t, dynamo.Vec3{0, 0, 0}, x[0], "input positions must not be transformed in place")
}

func TestBuildAmplitudeMismatch(t *testing.T) {
	shape, err := gauss.NewKernelShape(1, 3, lattice.ScaleCoordinates{Scale: dynamo.Vec3{1, 1, 1}})
	require.NoError(t, err)
	_, err = Build([]dynamo.Vec3{{1, 1, 1}}, nil, shape, lattice.TranslateAndScale{Scale: dynamo.Vec3{1, 1, 1}}, grid.Extents{3, 3, 3})
	assert.ErrorIs(t, err, dynamo.ErrAmplitudeMismatch)
}
