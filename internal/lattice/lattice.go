// Package lattice maps lab-frame coordinates onto the index lattice of a
// density grid.
package lattice

import (
	"fmt"

	"github.com/san-kum/densfit/internal/dynamo"
)

// ScaleCoordinates multiplies each coordinate axis by a fixed factor.
type ScaleCoordinates struct {
	Scale dynamo.Vec3
}

func (s ScaleCoordinates) Apply(xs []dynamo.Vec3) {
	for i := range xs {
		for d := 0; d < 3; d++ {
			xs[i][d] *= s.Scale[d]
		}
	}
}

// Inverse divides by the scale. Axes with zero scale produce Inf or NaN; use
// InverseIgnoringZeroScale when that can happen.
func (s ScaleCoordinates) Inverse(xs []dynamo.Vec3) {
	for i := range xs {
		for d := 0; d < 3; d++ {
			xs[i][d] /= s.Scale[d]
		}
	}
}

// InverseIgnoringZeroScale divides by the scale but leaves axes with a zero
// scale factor untouched.
func (s ScaleCoordinates) InverseIgnoringZeroScale(xs []dynamo.Vec3) {
	var inv dynamo.Vec3
	for d := 0; d < 3; d++ {
		if s.Scale[d] != 0 {
			inv[d] = 1 / s.Scale[d]
		} else {
			inv[d] = 1
		}
	}
	for i := range xs {
		for d := 0; d < 3; d++ {
			xs[i][d] *= inv[d]
		}
	}
}

// TranslateAndScale maps x to scale * (x + translation), component-wise.
type TranslateAndScale struct {
	Scale       dynamo.Vec3
	Translation dynamo.Vec3
}

func (t TranslateAndScale) Apply(xs []dynamo.Vec3) {
	for i := range xs {
		for d := 0; d < 3; d++ {
			xs[i][d] = t.Scale[d] * (xs[i][d] + t.Translation[d])
		}
	}
}

func (t TranslateAndScale) ScaleOperationOnly() ScaleCoordinates {
	return ScaleCoordinates{Scale: t.Scale}
}

// FromVoxelSize builds the transform for a grid whose cell (0,0,0) sits at
// origin and whose cells are voxel wide along each axis.
func FromVoxelSize(voxel, origin dynamo.Vec3) (TranslateAndScale, error) {
	var scale dynamo.Vec3
	for d := 0; d < 3; d++ {
		if voxel[d] <= 0 {
			return TranslateAndScale{}, fmt.Errorf("%w: voxel size %v must be positive on every axis",
				dynamo.ErrInvalidParameter, voxel)
		}
		scale[d] = 1 / voxel[d]
	}
	return TranslateAndScale{
		Scale:       scale,
		Translation: origin.Scale(-1),
	}, nil
}
