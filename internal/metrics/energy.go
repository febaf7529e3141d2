package metrics

import (
	"math"

	"github.com/san-kum/densfit/internal/dynamo"
)

// FitEnergy reports the most recent density fitting energy.
type FitEnergy struct {
	name    string
	last    float64
	min     float64
	samples int
}

func NewFitEnergy() *FitEnergy {
	return &FitEnergy{name: "fit_energy"}
}

func (e *FitEnergy) Name() string { return e.name }

func (e *FitEnergy) Observe(_ []dynamo.Vec3, energies *dynamo.Energies, _ int64) {
	if energies == nil {
		return
	}
	v := energies[dynamo.TermDensityFitting]
	if e.samples == 0 || v < e.min {
		e.min = v
	}
	e.last = v
	e.samples++
}

func (e *FitEnergy) Value() float64 { return e.last }

// Min is the lowest fitting energy seen since the last reset.
func (e *FitEnergy) Min() float64 { return e.min }

func (e *FitEnergy) Reset() {
	e.last = 0
	e.min = 0
	e.samples = 0
}

// EnergyDrift is the largest relative change of the total energy from its
// first observed value.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	maxDrift      float64
	samples       int
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(_ []dynamo.Vec3, energies *dynamo.Energies, _ int64) {
	if energies == nil {
		return
	}
	var energy float64
	for _, v := range energies {
		energy += v
	}

	if e.samples == 0 {
		e.initialEnergy = energy
	}
	e.samples++

	if e.initialEnergy != 0 {
		drift := math.Abs(energy-e.initialEnergy) / math.Abs(e.initialEnergy)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 { return e.maxDrift }

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}
