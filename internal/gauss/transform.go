package gauss

import (
	"github.com/san-kum/densfit/internal/grid"
)

// GaussTransform3D accumulates spread kernels on a grid. The grid is an
// accumulator: call Reset before each spreading pass.
type GaussTransform3D struct {
	shape   KernelShape
	grid    *grid.Grid
	windows [3]Window
}

func New(extents grid.Extents, shape KernelShape) (*GaussTransform3D, error) {
	g, err := grid.New(extents)
	if err != nil {
		return nil, err
	}
	return &GaussTransform3D{shape: shape, grid: g}, nil
}

func (t *GaussTransform3D) Shape() KernelShape { return t.shape }

func (t *GaussTransform3D) Reset() { t.grid.Zero() }

// Add spreads amplitude * G(cell - position) onto every cell inside the
// truncation window. Positions far outside the grid leave it untouched.
func (t *GaussTransform3D) Add(k Kernel) {
	ext := t.grid.Extents()
	t.shape.Windows(k.Position, ext, &t.windows)
	wx, wy, wz := &t.windows[0], &t.windows[1], &t.windows[2]
	if wx.Len() == 0 || wy.Len() == 0 || wz.Len() == 0 {
		return
	}

	data := t.grid.Data()
	for a, gx := range wx.Weights {
		ax := k.Amplitude * gx
		i := wx.Start + a
		for b, gy := range wy.Weights {
			axy := ax * gy
			row := (i*ext[1]+wy.Start+b)*ext[2] + wz.Start
			for c, gz := range wz.Weights {
				data[row+c] += axy * gz
			}
		}
	}
}

// View exposes the accumulated grid read-only.
func (t *GaussTransform3D) View() grid.View { return t.grid }

// Data exposes the flat buffer for in-place collective reduction.
func (t *GaussTransform3D) Data() []float64 { return t.grid.Data() }
