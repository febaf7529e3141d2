package md

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/san-kum/densfit/internal/atomset"
	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/integrators"
	"github.com/san-kum/densfit/internal/reduce"
)

type Simulator struct {
	factory    ProviderFactory
	integrator integrators.Integrator
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	logger     *slog.Logger
}

func New(factory ProviderFactory, integrator integrators.Integrator) *Simulator {
	return &Simulator{
		factory:    factory,
		integrator: integrator,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
		logger:     slog.Default(),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }
func (s *Simulator) SetLogger(l *slog.Logger)      { s.logger = l }

// ranks holds the per-rank providers and their particle assignment.
type ranks struct {
	parts     [][]int
	local     []*atomset.LocalAtomSet
	providers []dynamo.ForceProvider
	energies  []dynamo.Energies
	rotation  int
}

func (s *Simulator) setup(n int, cfg Config) (*ranks, error) {
	parts, err := atomset.Partition(n, cfg.Ranks, cfg.Partition)
	if err != nil {
		return nil, err
	}
	rs := &ranks{
		parts:     parts,
		local:     make([]*atomset.LocalAtomSet, cfg.Ranks),
		providers: make([]dynamo.ForceProvider, cfg.Ranks),
		energies:  make([]dynamo.Energies, cfg.Ranks),
	}
	for r := range rs.local {
		rs.local[r] = atomset.New(parts[r])
		rs.providers[r], err = s.factory(r, rs.local[r])
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", r, err)
		}
	}
	return rs, nil
}

// rotate hands every rank the particles of the next rank.
func (rs *ranks) rotate() {
	rs.rotation++
	n := len(rs.parts)
	for r, l := range rs.local {
		l.SetLocalIndex(rs.parts[(r+rs.rotation)%n])
	}
}

// Session is a run in progress, advanced one step at a time.
type Session struct {
	sim    *Simulator
	sys    *System
	cfg    Config
	ranks  *ranks
	forces []dynamo.Vec3
	step   int64
	result *Result
	err    error
}

// Start validates the run and builds the per-rank providers. sys is advanced
// in place by Step.
func (s *Simulator) Start(sys *System, cfg Config) (*Session, error) {
	if err := s.validateConfig(sys, cfg); err != nil {
		return nil, err
	}
	rs, err := s.setup(sys.Len(), cfg)
	if err != nil {
		return nil, err
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	s.logger.Info("run started",
		"atoms", sys.Len(),
		"ranks", cfg.Ranks,
		"steps", cfg.Steps,
		"integrator", s.integrator.Name(),
	)
	return &Session{
		sim:    s,
		sys:    sys,
		cfg:    cfg,
		ranks:  rs,
		forces: make([]dynamo.Vec3, sys.Len()),
		result: &Result{
			Energies: make([]EnergyRecord, 0, cfg.Steps),
			Metrics:  make(map[string]float64),
			Errors:   make([]error, 0),
		},
	}, nil
}

// Run advances sys in place for cfg.Steps steps. On error the partial result
// is returned together with the error.
func (s *Simulator) Run(ctx context.Context, sys *System, cfg Config) (*Result, error) {
	sess, err := s.Start(sys, cfg)
	if err != nil {
		return nil, err
	}
	for !sess.Done() {
		if err := sess.Step(ctx); err != nil {
			return sess.Finish(), err
		}
	}
	return sess.Finish(), nil
}

func (r *Session) Done() bool      { return r.err != nil || r.step >= r.cfg.Steps }
func (r *Session) Steps() int64    { return r.step }
func (r *Session) Total() int64    { return r.cfg.Steps }
func (r *Session) Err() error      { return r.err }
func (r *Session) System() *System { return r.sys }

// Last is the energy record of the most recent step.
func (r *Session) Last() (EnergyRecord, bool) {
	if len(r.result.Energies) == 0 {
		return EnergyRecord{}, false
	}
	return r.result.Energies[len(r.result.Energies)-1], true
}

// Step evaluates the forces of all ranks and integrates one step. After a
// failed step the session is done and Step keeps returning the same error.
func (r *Session) Step(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	if r.step >= r.cfg.Steps {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s, sys, step := r.sim, r.sys, r.step

	if r.cfg.Rebalance > 0 && step > 0 && step%r.cfg.Rebalance == 0 {
		r.ranks.rotate()
		s.logger.Debug("rebalanced ranks", "step", step, "rotation", r.ranks.rotation)
	}

	clear(r.forces)
	if err := s.evaluate(ctx, sys, r.ranks, r.forces, step); err != nil {
		return r.fail(err)
	}

	var energies dynamo.Energies
	for i := range r.ranks.energies {
		energies.Add(&r.ranks.energies[i])
	}
	energies[dynamo.TermKinetic] = sys.KineticEnergy()

	for _, m := range s.metrics {
		m.Observe(sys.X, &energies, step)
	}
	for _, obs := range s.observers {
		obs.OnStep(sys.X, &energies, step)
	}
	r.result.Energies = append(r.result.Energies, EnergyRecord{
		Step:           step,
		DensityFitting: energies[dynamo.TermDensityFitting],
		Kinetic:        energies[dynamo.TermKinetic],
		Total:          energies[dynamo.TermDensityFitting] + energies[dynamo.TermKinetic],
	})

	s.integrator.Step(sys.X, sys.V, r.forces, sys.Atoms.Mass)
	r.step++
	r.result.StepsTaken = r.step

	if r.cfg.ValidateState && !positionsValid(sys.X) {
		err := dynamo.StepError{Step: step, Message: "invalid state (NaN/Inf)"}
		return r.fail(fmt.Errorf("%w: %w", dynamo.ErrInvalidState, err))
	}
	return nil
}

func (r *Session) fail(err error) error {
	r.err = err
	r.result.Errors = append(r.result.Errors, err)
	return err
}

// Finish collects the metrics and final positions.
func (r *Session) Finish() *Result {
	r.result.Final = append([]dynamo.Vec3(nil), r.sys.X...)
	for _, m := range r.sim.metrics {
		r.result.Metrics[m.Name()] = m.Value()
	}
	if r.err == nil {
		r.sim.logger.Info("run finished", "steps", r.result.StepsTaken, "metrics", r.result.Metrics)
	}
	return r.result
}

// evaluate runs every rank's provider on one collective group.
func (s *Simulator) evaluate(ctx context.Context, sys *System, rs *ranks, forces []dynamo.Vec3, step int64) error {
	for r := range rs.energies {
		rs.energies[r].Reset()
	}
	err := reduce.Run(ctx, len(rs.providers), func(_ context.Context, comm dynamo.Communicator) error {
		r := comm.Rank()
		in := dynamo.ForceProviderInput{X: sys.X, Atoms: &sys.Atoms, Comm: comm, Step: step}
		out := dynamo.ForceProviderOutput{Forces: forces, Energies: &rs.energies[r]}
		return rs.providers[r].CalculateForces(in, &out)
	})
	var simErr *dynamo.SimulationError
	if errors.As(err, &simErr) {
		simErr.Step = step
	}
	return err
}

func (s *Simulator) validateConfig(sys *System, cfg Config) error {
	if sys == nil || sys.Len() == 0 {
		return fmt.Errorf("%w: empty system", dynamo.ErrInvalidParameter)
	}
	if len(sys.V) != sys.Len() {
		return fmt.Errorf("%w: %d velocities for %d particles", dynamo.ErrInvalidParameter, len(sys.V), sys.Len())
	}
	if cfg.Steps < 0 {
		return fmt.Errorf("%w: steps must be non-negative, got %d", dynamo.ErrInvalidParameter, cfg.Steps)
	}
	if cfg.Ranks < 1 {
		return fmt.Errorf("%w: ranks must be at least 1, got %d", dynamo.ErrInvalidParameter, cfg.Ranks)
	}
	return nil
}

func positionsValid(x []dynamo.Vec3) bool {
	for _, xi := range x {
		if !xi.IsValid() {
			return false
		}
	}
	return true
}
