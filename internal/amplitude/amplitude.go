// Package amplitude assigns a spreading weight to every local particle.
package amplitude

import (
	"fmt"
	"strings"

	"github.com/san-kum/densfit/internal/dynamo"
)

type Method int

const (
	Unity Method = iota
	Mass
	Charge
)

func (m Method) String() string {
	switch m {
	case Unity:
		return "unity"
	case Mass:
		return "mass"
	case Charge:
		return "charge"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unity", "":
		return Unity, nil
	case "mass":
		return Mass, nil
	case "charge":
		return Charge, nil
	}
	return 0, fmt.Errorf("%w: amplitude lookup %q", dynamo.ErrUnknownMethod, s)
}

// Lookup returns one amplitude per local particle. The returned slice is
// reused across calls.
type Lookup struct {
	method     Method
	amplitudes []float64
}

func New(method Method) (*Lookup, error) {
	if method < Unity || method > Charge {
		return nil, fmt.Errorf("%w: amplitude lookup %v", dynamo.ErrUnknownMethod, method)
	}
	return &Lookup{method: method}, nil
}

func (l *Lookup) Method() Method { return l.method }

func (l *Lookup) Amplitudes(atoms *dynamo.Atoms, localIndex []int) ([]float64, error) {
	if cap(l.amplitudes) < len(localIndex) {
		l.amplitudes = make([]float64, len(localIndex))
	}
	l.amplitudes = l.amplitudes[:len(localIndex)]

	var src []float64
	switch l.method {
	case Unity:
		for i := range l.amplitudes {
			l.amplitudes[i] = 1
		}
		return l.amplitudes, nil
	case Mass:
		if atoms != nil {
			src = atoms.Mass
		}
	case Charge:
		if atoms != nil {
			src = atoms.Charge
		}
	}

	for i, idx := range localIndex {
		if idx < 0 || idx >= len(src) {
			return nil, fmt.Errorf("%w: no %v for particle %d", dynamo.ErrInvalidParameter, l.method, idx)
		}
		l.amplitudes[i] = src[idx]
	}
	return l.amplitudes, nil
}
