// Package particles reads, writes and generates particle structures.
package particles

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/densfit/internal/dynamo"
)

// Record is one CSV row.
type Record struct {
	X      float64 `csv:"x"`
	Y      float64 `csv:"y"`
	Z      float64 `csv:"z"`
	Mass   float64 `csv:"mass"`
	Charge float64 `csv:"charge"`
}

// Set is a structure: positions plus per-particle metadata.
type Set struct {
	X     []dynamo.Vec3
	Atoms dynamo.Atoms
}

func (s *Set) Len() int { return len(s.X) }

func (s *Set) Clone() *Set {
	return &Set{
		X: append([]dynamo.Vec3(nil), s.X...),
		Atoms: dynamo.Atoms{
			Mass:   append([]float64(nil), s.Atoms.Mass...),
			Charge: append([]float64(nil), s.Atoms.Charge...),
		},
	}
}

func (s *Set) Records() []Record {
	out := make([]Record, s.Len())
	for i, x := range s.X {
		out[i] = Record{X: x[0], Y: x[1], Z: x[2], Mass: s.Atoms.Mass[i], Charge: s.Atoms.Charge[i]}
	}
	return out
}

func FromRecords(records []Record) (*Set, error) {
	s := &Set{
		X:     make([]dynamo.Vec3, len(records)),
		Atoms: dynamo.Atoms{Mass: make([]float64, len(records)), Charge: make([]float64, len(records))},
	}
	for i, r := range records {
		x := dynamo.Vec3{r.X, r.Y, r.Z}
		if !x.IsValid() {
			return nil, fmt.Errorf("particle %d: %w: position %v", i, dynamo.ErrInvalidParameter, x)
		}
		if r.Mass < 0 {
			return nil, fmt.Errorf("particle %d: %w: negative mass %g", i, dynamo.ErrInvalidParameter, r.Mass)
		}
		s.X[i] = x
		s.Atoms.Mass[i] = r.Mass
		s.Atoms.Charge[i] = r.Charge
	}
	return s, nil
}

func Read(r io.Reader) (*Set, error) {
	var records []Record
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("reading particles: %w", err)
	}
	return FromRecords(records)
}

func Write(w io.Writer, s *Set) error {
	if err := gocsv.Marshal(s.Records(), w); err != nil {
		return fmt.Errorf("writing particles: %w", err)
	}
	return nil
}

func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func Save(path string, s *Set) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

const carbonMass = 12.011

// Helix places n particles on a helix around the z axis starting at the
// origin. turn is the rotation per particle in degrees. Charges alternate
// sign so the charge amplitude method has something to spread.
func Helix(n int, radius, rise, turn float64) *Set {
	s := &Set{
		X:     make([]dynamo.Vec3, n),
		Atoms: dynamo.Atoms{Mass: make([]float64, n), Charge: make([]float64, n)},
	}
	step := turn * math.Pi / 180
	for i := range n {
		phi := float64(i) * step
		s.X[i] = dynamo.Vec3{radius * math.Cos(phi), radius * math.Sin(phi), float64(i) * rise}
		s.Atoms.Mass[i] = carbonMass
		s.Atoms.Charge[i] = 0.5
		if i%2 == 1 {
			s.Atoms.Charge[i] = -0.5
		}
	}
	return s
}

// Perturb returns a copy of s with every coordinate displaced by normal noise
// of width sigma.
func Perturb(s *Set, sigma float64, seed int64) *Set {
	out := s.Clone()
	if sigma == 0 {
		return out
	}
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)}
	for i := range out.X {
		for d := 0; d < 3; d++ {
			out.X[i][d] += noise.Rand()
		}
	}
	return out
}

// Center returns the geometric center of s.
func Center(s *Set) dynamo.Vec3 {
	var c dynamo.Vec3
	if s.Len() == 0 {
		return c
	}
	for _, x := range s.X {
		c = c.Add(x)
	}
	return c.Scale(1 / float64(s.Len()))
}
