package integrators

import "github.com/san-kum/densfit/internal/dynamo"

// Verlet is a leapfrog integrator with linear friction. Velocities live at
// half steps: v(t+dt/2) = (1-γdt) v(t-dt/2) + dt f(t)/m.
type Verlet struct {
	Dt       float64
	Friction float64
}

func NewVerlet(dt, friction float64) *Verlet {
	return &Verlet{Dt: dt, Friction: friction}
}

func (l *Verlet) Name() string { return "verlet" }

func (l *Verlet) Step(x, v, f []dynamo.Vec3, mass []float64) {
	damp := 1 - l.Friction*l.Dt
	if damp < 0 {
		damp = 0
	}
	for i := range x {
		v[i] = v[i].Scale(damp).Add(f[i].Scale(l.Dt * invMass(mass, i)))
		x[i] = x[i].Add(v[i].Scale(l.Dt))
	}
}
