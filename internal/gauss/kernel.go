// Package gauss spreads weighted points onto a density grid with a truncated
// Gaussian kernel.
//
// The kernel is normalized in lattice units,
//
//	G(d) = Π_a exp(-d_a²/2σ_a²) / (√(2π) σ_a)
//
// so the cells covered by one spread point sum to its amplitude up to the
// Gaussian tail beyond the truncation radius. Spreading and force evaluation
// both take their weights from [KernelShape.Window], which keeps the support
// and normalization of the two identical.
package gauss

import (
	"fmt"
	"math"

	"github.com/san-kum/densfit/internal/dynamo"
)

var invSqrt2Pi = 1 / math.Sqrt(2*math.Pi)

// Scaler is the scale-only part of a lab to lattice transform.
type Scaler interface {
	Apply(xs []dynamo.Vec3)
}

// KernelShape is a Gaussian width per lattice axis and a truncation radius in
// multiples of that width.
type KernelShape struct {
	Sigma        dynamo.Vec3
	RangeInSigma float64
}

// NewKernelShape converts a lab-frame width sigma into lattice units.
func NewKernelShape(sigma, rangeInSigma float64, scale Scaler) (KernelShape, error) {
	if !(sigma > 0) {
		return KernelShape{}, fmt.Errorf("%w: spreading width %g must be positive", dynamo.ErrInvalidParameter, sigma)
	}
	if !(rangeInSigma > 0) {
		return KernelShape{}, fmt.Errorf("%w: spreading range %g must be positive", dynamo.ErrInvalidParameter, rangeInSigma)
	}

	s := []dynamo.Vec3{{sigma, sigma, sigma}}
	scale.Apply(s)

	shape := KernelShape{RangeInSigma: rangeInSigma}
	for d := 0; d < 3; d++ {
		shape.Sigma[d] = math.Abs(s[0][d])
		if !(shape.Sigma[d] > 0) || math.IsInf(shape.Sigma[d], 0) {
			return KernelShape{}, fmt.Errorf("%w: lattice width %g along axis %d", dynamo.ErrInvalidParameter, shape.Sigma[d], d)
		}
	}
	return shape, nil
}

// Range is the truncation radius along axis, in lattice units.
func (s KernelShape) Range(axis int) float64 {
	return s.RangeInSigma * s.Sigma[axis]
}

// Kernel is one spread point: a lattice position and its amplitude.
type Kernel struct {
	Position  dynamo.Vec3
	Amplitude float64
}

// Window holds the one-dimensional kernel weights of a single axis. Cell
// Start+n carries Weights[n]; Derivatives[n] is the derivative of that weight
// with respect to the kernel center.
type Window struct {
	Start       int
	Weights     []float64
	Derivatives []float64
}

func (w *Window) Len() int { return len(w.Weights) }

// Window fills w with the cells i in [0, extent) satisfying
// |i - center| <= RangeInSigma*Sigma[axis]. The buffers of w are reused.
func (s KernelShape) Window(axis int, center float64, extent int, w *Window) {
	sigma := s.Sigma[axis]
	r := s.Range(axis)

	w.Start = 0
	w.Weights = w.Weights[:0]
	w.Derivatives = w.Derivatives[:0]
	// float to int conversion of NaN and Inf is platform dependent
	if math.IsNaN(center) || math.IsInf(center, 0) {
		return
	}

	lo := int(math.Ceil(center - r))
	hi := int(math.Floor(center + r))
	if lo < 0 {
		lo = 0
	}
	if hi > extent-1 {
		hi = extent - 1
	}

	w.Start = lo
	if hi < lo {
		return
	}

	norm := invSqrt2Pi / sigma
	invVar := 1 / (sigma * sigma)
	for i := lo; i <= hi; i++ {
		d := float64(i) - center
		g := norm * math.Exp(-0.5*d*d*invVar)
		w.Weights = append(w.Weights, g)
		w.Derivatives = append(w.Derivatives, g*d*invVar)
	}
}

// Windows fills one window per axis for a kernel centered at position.
func (s KernelShape) Windows(position dynamo.Vec3, extents [3]int, ws *[3]Window) {
	for d := 0; d < 3; d++ {
		s.Window(d, position[d], extents[d], &ws[d])
	}
}
