package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/densfit/internal/dynamo"
)

func TestFitEnergy(t *testing.T) {
	m := NewFitEnergy()

	for _, v := range []float64{-1, -3, -2} {
		var e dynamo.Energies
		e[dynamo.TermDensityFitting] = v
		e[dynamo.TermKinetic] = 100
		m.Observe(nil, &e, 0)
	}
	if m.Value() != -2 {
		t.Errorf("expected last energy -2, got %f", m.Value())
	}
	if m.Min() != -3 {
		t.Errorf("expected min energy -3, got %f", m.Min())
	}

	m.Reset()
	if m.Value() != 0 || m.Min() != 0 {
		t.Error("expected zero energy after reset")
	}
}

func TestEnergyDrift(t *testing.T) {
	m := NewEnergyDrift()
	for _, v := range []float64{-10, -12, -9, -11} {
		var e dynamo.Energies
		e[dynamo.TermDensityFitting] = v
		m.Observe(nil, &e, 0)
	}
	if math.Abs(m.Value()-0.2) > 1e-12 {
		t.Errorf("expected drift 0.2, got %f", m.Value())
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero drift after reset")
	}
}

func TestStability(t *testing.T) {
	m := NewStability(10)
	if m.Value() != 1 {
		t.Error("expected full stability without samples")
	}
	m.Observe([]dynamo.Vec3{{1, 2, 3}}, nil, 0)
	m.Observe([]dynamo.Vec3{{1, 2, 30}}, nil, 1)
	m.Observe([]dynamo.Vec3{{math.NaN(), 0, 0}}, nil, 2)
	m.Observe([]dynamo.Vec3{{0, -9, 0}}, nil, 3)
	if m.Value() != 0.5 {
		t.Errorf("expected stability 0.5, got %f", m.Value())
	}
}

func TestRMSD(t *testing.T) {
	target := []dynamo.Vec3{{0, 0, 0}, {1, 0, 0}}
	m := NewRMSD(target)

	m.Observe(target, nil, 0)
	if m.Value() != 0 {
		t.Errorf("expected zero rmsd, got %f", m.Value())
	}

	m.Observe([]dynamo.Vec3{{0, 3, 4}, {1, 0, 0}}, nil, 1)
	expected := math.Sqrt(25.0 / 2)
	if math.Abs(m.Value()-expected) > 1e-12 {
		t.Errorf("expected rmsd %f, got %f", expected, m.Value())
	}
}

func TestDisplacement(t *testing.T) {
	m := NewDisplacement()
	m.Observe([]dynamo.Vec3{{0, 0, 0}, {1, 1, 1}}, nil, 0)
	m.Observe([]dynamo.Vec3{{0, 1, 0}, {1, 1, 1}}, nil, 1)
	m.Observe([]dynamo.Vec3{{0, 0.5, 0}, {1, 1, 3}}, nil, 2)
	if m.Value() != 2 {
		t.Errorf("expected max displacement 2, got %f", m.Value())
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestMetricsImplementInterface(t *testing.T) {
	var _ []dynamo.Metric = []dynamo.Metric{
		NewFitEnergy(), NewEnergyDrift(), NewStability(1), NewRMSD(nil), NewDisplacement(),
	}
}
