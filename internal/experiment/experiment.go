// Package experiment assembles a density fitting run from a configuration:
// target structure, reference density, per-rank providers and the simulator.
package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/densfit/internal/amplitude"
	"github.com/san-kum/densfit/internal/atomset"
	"github.com/san-kum/densfit/internal/config"
	"github.com/san-kum/densfit/internal/densityfit"
	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/gauss"
	"github.com/san-kum/densfit/internal/grid"
	"github.com/san-kum/densfit/internal/integrators"
	"github.com/san-kum/densfit/internal/lattice"
	"github.com/san-kum/densfit/internal/md"
	"github.com/san-kum/densfit/internal/particles"
	"github.com/san-kum/densfit/internal/refmap"
)

type Experiment struct {
	cfg       *config.Config
	params    densityfit.Parameters
	transform lattice.TranslateAndScale
	logger    *slog.Logger

	Target    *particles.Set
	Reference *grid.Grid
}

func New(cfg *config.Config, logger *slog.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	params, _ := cfg.Parameters()
	transform, _ := cfg.Transform()

	e := &Experiment{cfg: cfg, params: params, transform: transform, logger: logger}

	target, err := e.loadTarget()
	if err != nil {
		return nil, err
	}
	e.Target = target

	e.Reference, err = e.buildReference()
	if err != nil {
		return nil, err
	}
	logger.Info("reference density built",
		"atoms", target.Len(),
		"extents", cfg.GridExtents(),
		"mass", e.Reference.Sum(),
	)
	return e, nil
}

func (e *Experiment) loadTarget() (*particles.Set, error) {
	s := e.cfg.Structure
	if s.Particles != "" {
		set, err := particles.Load(s.Particles)
		if err != nil {
			return nil, fmt.Errorf("loading target: %w", err)
		}
		if set.Len() == 0 {
			return nil, fmt.Errorf("loading target: %w: %s has no particles", dynamo.ErrInvalidParameter, s.Particles)
		}
		return set, nil
	}
	return particles.Helix(s.Atoms, s.Radius, s.Rise, s.Turn), nil
}

func (e *Experiment) buildReference() (*grid.Grid, error) {
	lookup, err := amplitude.New(e.params.AmplitudeMethod)
	if err != nil {
		return nil, err
	}
	all := make([]int, e.Target.Len())
	for i := range all {
		all[i] = i
	}
	amps, err := lookup.Amplitudes(&e.Target.Atoms, all)
	if err != nil {
		return nil, err
	}
	shape, err := gauss.NewKernelShape(e.params.SpreadWidth, e.params.SpreadRangeInSigma, e.transform.ScaleOperationOnly())
	if err != nil {
		return nil, err
	}
	return refmap.Build(e.Target.X, amps, shape, e.transform, e.cfg.GridExtents())
}

func (e *Experiment) Config() *config.Config { return e.cfg }

// Start is the target displaced by the configured perturbation.
func (e *Experiment) Start(seed int64) *md.System {
	start := particles.Perturb(e.Target, e.cfg.Structure.Perturb, seed)
	return md.NewSystem(start.X, start.Atoms)
}

func (e *Experiment) ProviderFactory() md.ProviderFactory {
	return func(rank int, local *atomset.LocalAtomSet) (dynamo.ForceProvider, error) {
		opts := []densityfit.Option{densityfit.WithLogger(e.logger.With("rank", rank))}
		if e.cfg.Run.Parallel > 0 {
			opts = append(opts, densityfit.WithParallel(e.cfg.Run.Parallel))
		}
		return densityfit.New(e.params, e.Reference, e.transform, local, opts...)
	}
}

// Simulator builds a fresh simulator with the default metrics attached.
func (e *Experiment) Simulator() (*md.Simulator, error) {
	r := e.cfg.Run
	integ, err := integrators.New(r.Integrator, r.Dt, r.Friction, r.MaxStep)
	if err != nil {
		return nil, err
	}
	sim := md.New(e.ProviderFactory(), integ)
	sim.SetLogger(e.logger)
	for _, m := range DefaultMetrics(e.cfg, e.Target) {
		sim.AddMetric(m)
	}
	return sim, nil
}

func (e *Experiment) MDConfig() md.Config {
	return md.Config{
		Steps:         e.cfg.Run.Steps,
		Ranks:         e.cfg.Run.Ranks,
		Partition:     e.cfg.PartitionStrategy(),
		Rebalance:     e.cfg.Run.Rebalance,
		ValidateState: true,
	}
}

// Run fits the perturbed start structure for the seed in the configuration.
func (e *Experiment) Run(ctx context.Context) (*md.Result, error) {
	sim, err := e.Simulator()
	if err != nil {
		return nil, err
	}
	return sim.Run(ctx, e.Start(e.cfg.Run.Seed), e.MDConfig())
}

// Ensemble fits n start structures seeded consecutively from the configured
// seed.
func (e *Experiment) Ensemble(ctx context.Context, n int) ([]*md.Result, error) {
	if _, err := e.Simulator(); err != nil {
		return nil, err
	}
	newSim := func() *md.Simulator {
		// same configuration as the simulator built above
		sim, _ := e.Simulator()
		return sim
	}
	return md.NewEnsemble(newSim, n, e.cfg.Run.Seed).Run(ctx, e.Start, e.MDConfig())
}
