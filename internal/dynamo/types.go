package dynamo

import (
	"fmt"
	"math"
)

// Vec3 is a position, force or scale vector.
type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v[0] * f, v[1] * f, v[2] * f}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v Vec3) IsValid() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Atoms holds per-particle metadata indexed by global particle index.
type Atoms struct {
	Mass   []float64
	Charge []float64
}

func (a *Atoms) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Mass)
}

// Energy terms accumulated by force providers.
type EnergyTerm int

const (
	TermDensityFitting EnergyTerm = iota
	TermKinetic
	NumEnergyTerms
)

func (t EnergyTerm) String() string {
	switch t {
	case TermDensityFitting:
		return "density_fitting"
	case TermKinetic:
		return "kinetic"
	default:
		return fmt.Sprintf("term(%d)", int(t))
	}
}

type Energies [NumEnergyTerms]float64

func (e *Energies) Add(o *Energies) {
	for i := range e {
		e[i] += o[i]
	}
}

func (e *Energies) Reset() {
	for i := range e {
		e[i] = 0
	}
}

// Communicator identifies the cooperating process group of a step.
type Communicator interface {
	Rank() int
	Size() int
	// SumFloat64 replaces buf with the element-wise sum over all ranks.
	// Every rank must call it the same number of times.
	SumFloat64(buf []float64) error
}

type ForceProviderInput struct {
	X     []Vec3
	Atoms *Atoms
	Comm  Communicator
	Step  int64
}

type ForceProviderOutput struct {
	Forces   []Vec3
	Energies *Energies
}

type ForceProvider interface {
	CalculateForces(in ForceProviderInput, out *ForceProviderOutput) error
}

type Metric interface {
	Name() string
	Observe(x []Vec3, energies *Energies, step int64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x []Vec3, energies *Energies, step int64)
}

type StepError struct {
	Step    int64
	Message string
}

func (e StepError) Error() string {
	return fmt.Sprintf("step %d: %s", e.Step, e.Message)
}
