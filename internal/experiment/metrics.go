package experiment

import (
	"math"

	"github.com/san-kum/densfit/internal/config"
	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/metrics"
	"github.com/san-kum/densfit/internal/particles"
)

// DefaultMetrics are collected on every run. Energy drift only means
// something for dynamics, so descent runs skip it.
func DefaultMetrics(cfg *config.Config, target *particles.Set) []dynamo.Metric {
	extent := 0.0
	for d := 0; d < 3; d++ {
		extent = max(extent, float64(cfg.Lattice.Extents[d])*cfg.Lattice.VoxelSize[d]+math.Abs(cfg.Lattice.Origin[d]))
	}
	ms := []dynamo.Metric{
		metrics.NewFitEnergy(),
		metrics.NewRMSD(target.X),
		metrics.NewDisplacement(),
		metrics.NewStability(extent),
	}
	if cfg.Run.Integrator == "verlet" {
		ms = append(ms, metrics.NewEnergyDrift())
	}
	return ms
}
