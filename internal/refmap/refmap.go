// Package refmap builds reference densities from target structures.
package refmap

import (
	"fmt"

	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/gauss"
	"github.com/san-kum/densfit/internal/grid"
)

// Transform maps lab coordinates onto the lattice.
type Transform interface {
	Apply(xs []dynamo.Vec3)
}

// Build spreads the particles at lab positions x with the given amplitudes
// onto a grid of extents ext. The result is what the fitting provider would
// spread for the same structure, so a structure fitted against it has its
// similarity optimum at x.
func Build(x []dynamo.Vec3, amplitudes []float64, shape gauss.KernelShape, transform Transform, ext grid.Extents) (*grid.Grid, error) {
	if len(amplitudes) != len(x) {
		return nil, fmt.Errorf("reference map: %w: %d amplitudes for %d particles",
			dynamo.ErrAmplitudeMismatch, len(amplitudes), len(x))
	}
	gt, err := gauss.New(ext, shape)
	if err != nil {
		return nil, fmt.Errorf("reference map: %w", err)
	}

	lat := append([]dynamo.Vec3(nil), x...)
	transform.Apply(lat)
	for i, r := range lat {
		gt.Add(gauss.Kernel{Position: r, Amplitude: amplitudes[i]})
	}
	return grid.FromValues(ext, gt.Data())
}
