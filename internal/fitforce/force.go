// Package fitforce back-projects a density gradient onto spread particles.
package fitforce

import (
	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/gauss"
	"github.com/san-kum/densfit/internal/grid"
)

// DensityFittingForce evaluates, for one spread kernel, the derivative of
// the similarity with respect to the kernel position:
//
//	F = amplitude · Σ_cells ∂G(cell - position)/∂position · gradient[cell]
//
// summed over the same truncated window the kernel was spread on.
type DensityFittingForce struct {
	shape   gauss.KernelShape
	windows [3]gauss.Window
}

func New(shape gauss.KernelShape) *DensityFittingForce {
	return &DensityFittingForce{shape: shape}
}

// EvaluateForce returns the lattice-space force on k. It reuses internal
// buffers, so a DensityFittingForce must not be shared between goroutines.
func (f *DensityFittingForce) EvaluateForce(k gauss.Kernel, gradient grid.View) dynamo.Vec3 {
	ext := gradient.Extents()
	f.shape.Windows(k.Position, ext, &f.windows)
	wx, wy, wz := &f.windows[0], &f.windows[1], &f.windows[2]
	if wx.Len() == 0 || wy.Len() == 0 || wz.Len() == 0 {
		return dynamo.Vec3{}
	}

	data := gradient.Values()
	var force dynamo.Vec3
	for a := range wx.Weights {
		gx, dgx := wx.Weights[a], wx.Derivatives[a]
		i := wx.Start + a
		for b := range wy.Weights {
			gy, dgy := wy.Weights[b], wy.Derivatives[b]
			row := (i*ext[1]+wy.Start+b)*ext[2] + wz.Start
			// partial sums over z for this (x, y) column
			var sum, sumDz float64
			for c := range wz.Weights {
				v := data[row+c]
				sum += wz.Weights[c] * v
				sumDz += wz.Derivatives[c] * v
			}
			force[0] += dgx * gy * sum
			force[1] += gx * dgy * sum
			force[2] += gx * gy * sumDz
		}
	}
	return force.Scale(k.Amplitude)
}
