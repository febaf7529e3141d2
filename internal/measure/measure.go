// Package measure compares a simulated density with a fixed reference
// density and differentiates that comparison with respect to the simulated
// values.
package measure

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/grid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Method int

const (
	InnerProduct Method = iota
	RelativeEntropy
	CrossCorrelation
)

var methodNames = map[Method]string{
	InnerProduct:     "inner-product",
	RelativeEntropy:  "relative-entropy",
	CrossCorrelation: "cross-correlation",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("method(%d)", int(m))
}

func ParseMethod(s string) (Method, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for m, name := range methodNames {
		if key == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: similarity measure %q", dynamo.ErrUnknownMethod, s)
}

func Methods() []string {
	return []string{InnerProduct.String(), RelativeEntropy.String(), CrossCorrelation.String()}
}

type similarity interface {
	similarity(ref, sim []float64) float64
	gradient(ref, sim, dst []float64)
}

// Measure holds the reference density and a reusable gradient buffer.
type Measure struct {
	method    Method
	reference *grid.Grid
	impl      similarity
	gradient  *grid.Grid
}

func New(method Method, reference grid.View) (*Measure, error) {
	ref, err := grid.FromValues(reference.Extents(), reference.Values())
	if err != nil {
		return nil, err
	}

	m := &Measure{method: method, reference: ref}
	switch method {
	case InnerProduct:
		m.impl = innerProduct{}
	case RelativeEntropy:
		m.impl = relativeEntropy{}
	case CrossCorrelation:
		m.impl = newCrossCorrelation(ref.Values())
	default:
		return nil, fmt.Errorf("%w: similarity measure %v", dynamo.ErrUnknownMethod, method)
	}

	if m.gradient, err = grid.New(ref.Extents()); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Measure) Method() Method       { return m.method }
func (m *Measure) Reference() grid.View { return m.reference }

// Gradient returns ∂S/∂sim for every cell. The returned view is owned by m
// and overwritten by the next call.
func (m *Measure) Gradient(sim grid.View) (grid.View, error) {
	if err := grid.SameShape(m.reference, sim); err != nil {
		return nil, err
	}
	m.impl.gradient(m.reference.Values(), sim.Values(), m.gradient.Data())
	return m.gradient, nil
}

func (m *Measure) Similarity(sim grid.View) (float64, error) {
	if err := grid.SameShape(m.reference, sim); err != nil {
		return 0, err
	}
	return m.impl.similarity(m.reference.Values(), sim.Values()), nil
}

// innerProduct is S = Σ r s / N.
type innerProduct struct{}

func (innerProduct) similarity(ref, sim []float64) float64 {
	return floats.Dot(ref, sim) / float64(len(ref))
}

func (innerProduct) gradient(ref, _, dst []float64) {
	floats.ScaleTo(dst, 1/float64(len(ref)), ref)
}

// relativeEntropy is S = Σ r ln(s/r) over cells where both densities are
// positive. It peaks at zero when s equals r.
type relativeEntropy struct{}

func (relativeEntropy) similarity(ref, sim []float64) float64 {
	s := 0.0
	for i, r := range ref {
		if r > 0 && sim[i] > 0 {
			s += r * (math.Log(sim[i]) - math.Log(r))
		}
	}
	return s
}

func (relativeEntropy) gradient(ref, sim, dst []float64) {
	for i, r := range ref {
		if r > 0 && sim[i] > 0 {
			dst[i] = r / sim[i]
		} else {
			dst[i] = 0
		}
	}
}

// crossCorrelation is the Pearson correlation of the two grids. A grid
// without variance correlates to zero with a zero gradient.
type crossCorrelation struct {
	refMean, refNorm float64
	simCentered      []float64
}

func newCrossCorrelation(ref []float64) *crossCorrelation {
	mean := stat.Mean(ref, nil)
	norm := 0.0
	for _, r := range ref {
		norm += (r - mean) * (r - mean)
	}
	return &crossCorrelation{refMean: mean, refNorm: math.Sqrt(norm)}
}

// center stores sim - mean(sim) and returns the norm of the result.
func (c *crossCorrelation) center(sim []float64) float64 {
	if cap(c.simCentered) < len(sim) {
		c.simCentered = make([]float64, len(sim))
	}
	c.simCentered = c.simCentered[:len(sim)]
	copy(c.simCentered, sim)
	floats.AddConst(-stat.Mean(sim, nil), c.simCentered)
	return floats.Norm(c.simCentered, 2)
}

func (c *crossCorrelation) covariance(ref []float64) float64 {
	cov := 0.0
	for i, r := range ref {
		cov += (r - c.refMean) * c.simCentered[i]
	}
	return cov
}

func (c *crossCorrelation) similarity(ref, sim []float64) float64 {
	simNorm := c.center(sim)
	if c.refNorm == 0 || simNorm == 0 {
		return 0
	}
	return c.covariance(ref) / (c.refNorm * simNorm)
}

func (c *crossCorrelation) gradient(ref, sim, dst []float64) {
	simNorm := c.center(sim)
	if c.refNorm == 0 || simNorm == 0 {
		clear(dst)
		return
	}
	cc := c.covariance(ref) / (c.refNorm * simNorm)
	a := 1 / (c.refNorm * simNorm)
	b := cc / (simNorm * simNorm)
	for i, r := range ref {
		dst[i] = a*(r-c.refMean) - b*c.simCentered[i]
	}
}
