package integrators

import (
	"fmt"

	"github.com/san-kum/densfit/internal/dynamo"
)

// Integrator advances positions x (and velocities v, where used) by one step
// given the forces f at the current positions. Particles with non-positive
// mass are treated as unit mass.
type Integrator interface {
	Name() string
	Step(x, v, f []dynamo.Vec3, mass []float64)
}

func New(name string, dt, friction, maxStep float64) (Integrator, error) {
	switch name {
	case "steepest-descent":
		return NewSteepestDescent(maxStep), nil
	case "verlet":
		return NewVerlet(dt, friction), nil
	}
	return nil, fmt.Errorf("%w: integrator %q", dynamo.ErrUnknownMethod, name)
}

func invMass(mass []float64, i int) float64 {
	if i < len(mass) && mass[i] > 0 {
		return 1 / mass[i]
	}
	return 1
}
