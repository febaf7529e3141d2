package integrators

import "github.com/san-kum/densfit/internal/dynamo"

// SteepestDescent moves every particle along its force. The particle with the
// largest force moves MaxStep; the others move proportionally less.
type SteepestDescent struct {
	MaxStep float64
}

func NewSteepestDescent(maxStep float64) *SteepestDescent {
	return &SteepestDescent{MaxStep: maxStep}
}

func (s *SteepestDescent) Name() string { return "steepest-descent" }

func (s *SteepestDescent) Step(x, _, f []dynamo.Vec3, _ []float64) {
	var fmax float64
	for _, fi := range f {
		if n := fi.Norm(); n > fmax {
			fmax = n
		}
	}
	if fmax == 0 {
		return
	}
	k := s.MaxStep / fmax
	for i := range x {
		x[i] = x[i].Add(f[i].Scale(k))
	}
}
