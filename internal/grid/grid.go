// Package grid holds three-dimensional scalar density grids.
//
// Cells are stored row-major with the last axis varying fastest. The mapping
// between cell indices and lab coordinates lives in package lattice.
package grid

import (
	"fmt"

	"github.com/san-kum/densfit/internal/dynamo"
	"gonum.org/v1/gonum/floats"
)

type Extents [3]int

func (e Extents) Len() int {
	return e[0] * e[1] * e[2]
}

func (e Extents) Validate() error {
	for d, n := range e {
		if n <= 0 {
			return fmt.Errorf("%w: extent %d along axis %d must be positive",
				dynamo.ErrInvalidParameter, n, d)
		}
	}
	return nil
}

// View is read-only access to a grid.
type View interface {
	Extents() Extents
	At(i, j, k int) float64
	Len() int
	// Values exposes the flat buffer. Callers must not modify it.
	Values() []float64
}

type Grid struct {
	extents Extents
	data    []float64
}

func New(extents Extents) (*Grid, error) {
	if err := extents.Validate(); err != nil {
		return nil, err
	}
	return &Grid{extents: extents, data: make([]float64, extents.Len())}, nil
}

// FromValues wraps a copy of values, which must hold extents.Len() cells.
func FromValues(extents Extents, values []float64) (*Grid, error) {
	if err := extents.Validate(); err != nil {
		return nil, err
	}
	if len(values) != extents.Len() {
		return nil, fmt.Errorf("%w: %d values for extents %v", dynamo.ErrExtentsMismatch, len(values), extents)
	}
	g := &Grid{extents: extents, data: make([]float64, len(values))}
	copy(g.data, values)
	return g, nil
}

func (g *Grid) Extents() Extents  { return g.extents }
func (g *Grid) Len() int          { return len(g.data) }
func (g *Grid) Values() []float64 { return g.data }
func (g *Grid) Data() []float64   { return g.data }
func (g *Grid) Sum() float64      { return floats.Sum(g.data) }
func (g *Grid) Zero()             { clear(g.data) }

func (g *Grid) InBounds(i, j, k int) bool {
	return i >= 0 && i < g.extents[0] &&
		j >= 0 && j < g.extents[1] &&
		k >= 0 && k < g.extents[2]
}

// Index returns the flat offset of cell (i, j, k). It panics when the cell
// lies outside the grid.
func (g *Grid) Index(i, j, k int) int {
	if !g.InBounds(i, j, k) {
		panic(fmt.Sprintf("grid: index (%d, %d, %d) out of bounds %v", i, j, k, g.extents))
	}
	return (i*g.extents[1]+j)*g.extents[2] + k
}

func (g *Grid) At(i, j, k int) float64 {
	return g.data[g.Index(i, j, k)]
}

func (g *Grid) Set(i, j, k int, v float64) {
	g.data[g.Index(i, j, k)] = v
}

func (g *Grid) Add(i, j, k int, v float64) {
	g.data[g.Index(i, j, k)] += v
}

func (g *Grid) Clone() *Grid {
	c := &Grid{extents: g.extents, data: make([]float64, len(g.data))}
	copy(c.data, g.data)
	return c
}

// SameShape reports an ErrExtentsMismatch when a and b differ in extents.
func SameShape(a, b View) error {
	if a.Extents() != b.Extents() {
		return fmt.Errorf("%w: %v vs %v", dynamo.ErrExtentsMismatch, a.Extents(), b.Extents())
	}
	return nil
}
