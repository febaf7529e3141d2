package metrics

import (
	"math"

	"github.com/san-kum/densfit/internal/dynamo"
)

// Stability is the fraction of observed steps on which every coordinate was
// finite and within threshold of the origin.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(x []dynamo.Vec3, _ *dynamo.Energies, _ int64) {
	s.samples++
	for _, xi := range x {
		if !xi.IsValid() || math.Abs(xi[0]) > s.threshold || math.Abs(xi[1]) > s.threshold || math.Abs(xi[2]) > s.threshold {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
