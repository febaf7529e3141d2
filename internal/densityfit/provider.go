// Package densityfit biases particles toward a reference density map.
//
// Each step the provider spreads the local particles onto a grid, sums the
// grids of all cooperating processes, compares the global grid with the
// reference, and back-projects the similarity gradient into forces:
//
//	lab coords → lattice → spread → collective sum → ∂S/∂ρ → forces → lab frame
//
// The fitting energy is -similarity · force constant.
package densityfit

import (
	"fmt"
	"log/slog"

	"github.com/san-kum/densfit/internal/amplitude"
	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/fitforce"
	"github.com/san-kum/densfit/internal/gauss"
	"github.com/san-kum/densfit/internal/grid"
	"github.com/san-kum/densfit/internal/lattice"
	"github.com/san-kum/densfit/internal/measure"
	"github.com/san-kum/densfit/internal/reduce"
)

// AmplitudeLookup assigns spreading weights to the local particles.
type AmplitudeLookup interface {
	Amplitudes(atoms *dynamo.Atoms, localIndex []int) ([]float64, error)
}

// CoordinateTransform maps lab coordinates onto the reference lattice.
type CoordinateTransform interface {
	Apply(xs []dynamo.Vec3)
	ScaleOperationOnly() lattice.ScaleCoordinates
}

// LocalAtoms lists the particles owned by this process.
type LocalAtoms interface {
	NumAtomsLocal() int
	LocalIndex() []int
}

type Option func(*impl)

func WithLogger(l *slog.Logger) Option {
	return func(p *impl) { p.logger = l }
}

// WithAmplitudeLookup replaces the lookup selected by Parameters.AmplitudeMethod.
func WithAmplitudeLookup(l AmplitudeLookup) Option {
	return func(p *impl) { p.amplitudes = l }
}

// WithParallel back-projects forces on several goroutines once a process
// owns more than minChunk particles.
func WithParallel(minChunk int) Option {
	return func(p *impl) { p.parallelChunk = minChunk }
}

// ForceProvider is the density fitting force provider.
type ForceProvider struct {
	impl *impl
}

type impl struct {
	params    Parameters
	atoms     LocalAtoms
	transform CoordinateTransform

	shape          gauss.KernelShape
	gaussTransform *gauss.GaussTransform3D
	measure        *measure.Measure
	force          *fitforce.DensityFittingForce
	amplitudes     AmplitudeLookup

	// local coordinates in lattice units, then lattice forces
	transformed []dynamo.Vec3
	forces      []dynamo.Vec3

	parallelChunk int
	logger        *slog.Logger

	// fitting energy of the most recent evaluated step, reported again on
	// skipped steps
	lastEnergy float64
	evaluated  bool
}

var _ dynamo.ForceProvider = (*ForceProvider)(nil)

func New(params Parameters, reference grid.View, transform CoordinateTransform, atoms LocalAtoms, opts ...Option) (*ForceProvider, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := reference.Extents().Validate(); err != nil {
		return nil, fmt.Errorf("reference density: %w", err)
	}
	if reference.Len() != reference.Extents().Len() || len(reference.Values()) != reference.Len() {
		return nil, fmt.Errorf("reference density: %w: %d values for extents %v",
			dynamo.ErrExtentsMismatch, len(reference.Values()), reference.Extents())
	}

	shape, err := gauss.NewKernelShape(params.SpreadWidth, params.SpreadRangeInSigma, transform.ScaleOperationOnly())
	if err != nil {
		return nil, err
	}
	gt, err := gauss.New(reference.Extents(), shape)
	if err != nil {
		return nil, err
	}
	m, err := measure.New(params.SimilarityMethod, reference)
	if err != nil {
		return nil, err
	}

	p := &impl{
		params:         params,
		atoms:          atoms,
		transform:      transform,
		shape:          shape,
		gaussTransform: gt,
		measure:        m,
		force:          fitforce.New(shape),
		transformed:    make([]dynamo.Vec3, atoms.NumAtomsLocal()),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.amplitudes == nil {
		lookup, err := amplitude.New(params.AmplitudeMethod)
		if err != nil {
			return nil, err
		}
		p.amplitudes = lookup
	}

	p.logger.Debug("density fitting provider ready",
		"sigma_lattice", shape.Sigma,
		"range_in_sigma", shape.RangeInSigma,
		"extents", reference.Extents(),
		"similarity", params.SimilarityMethod.String(),
		"force_constant", params.ForceConstant,
		"every", params.Every,
	)
	return &ForceProvider{impl: p}, nil
}

// CalculateForces adds the fitting forces of the local particles to
// out.Forces and, on rank 0, the fitting energy to out.Energies. Every process
// of in.Comm must call it on the same steps, including processes that own no
// particles.
func (f *ForceProvider) CalculateForces(in dynamo.ForceProviderInput, out *dynamo.ForceProviderOutput) error {
	return f.impl.calculateForces(in, out)
}

func (p *impl) calculateForces(in dynamo.ForceProviderInput, out *dynamo.ForceProviderOutput) error {
	if in.Step%p.params.Every != 0 {
		if p.evaluated && out.Energies != nil && (in.Comm == nil || in.Comm.Rank() == 0) {
			out.Energies[dynamo.TermDensityFitting] += p.lastEnergy
		}
		return nil
	}

	localIndex := p.atoms.LocalIndex()
	n := len(localIndex)
	if n != p.atoms.NumAtomsLocal() {
		return fmt.Errorf("density fitting: %w: %d local indices for %d local atoms",
			dynamo.ErrInvalidParameter, n, p.atoms.NumAtomsLocal())
	}

	p.transformed = resize(p.transformed, n)
	for i, idx := range localIndex {
		if idx < 0 || idx >= len(in.X) || idx >= len(out.Forces) {
			return fmt.Errorf("density fitting: %w: local particle %d outside %d coordinates",
				dynamo.ErrInvalidParameter, idx, len(in.X))
		}
		p.transformed[i] = in.X[idx]
	}
	p.transform.Apply(p.transformed)

	amplitudes, err := p.amplitudes.Amplitudes(in.Atoms, localIndex)
	if err != nil {
		return fmt.Errorf("density fitting: %w", err)
	}
	if len(amplitudes) != n {
		return fmt.Errorf("density fitting: %w: %d amplitudes for %d particles",
			dynamo.ErrAmplitudeMismatch, len(amplitudes), n)
	}

	p.gaussTransform.Reset()
	for i, r := range p.transformed {
		p.gaussTransform.Add(gauss.Kernel{Position: r, Amplitude: amplitudes[i]})
	}

	// a process without particles still contributes its zero grid
	if err := reduce.Sum(in.Comm, p.gaussTransform.Data()); err != nil {
		return fmt.Errorf("density fitting: summing spread density: %w", err)
	}
	density := p.gaussTransform.View()

	if n > 0 {
		gradient, err := p.measure.Gradient(density)
		if err != nil {
			return fmt.Errorf("density fitting: %w", err)
		}
		p.backProject(gradient, amplitudes)
		p.transform.ScaleOperationOnly().InverseIgnoringZeroScale(p.forces)

		scale := p.params.ForceConstant * float64(p.params.Every)
		for i, idx := range localIndex {
			out.Forces[idx] = out.Forces[idx].Add(p.forces[i].Scale(scale))
		}
	}

	// every rank holds the same global density; count the energy once
	if in.Comm == nil || in.Comm.Rank() == 0 {
		similarity, err := p.measure.Similarity(density)
		if err != nil {
			return fmt.Errorf("density fitting: %w", err)
		}
		energy := -similarity * p.params.ForceConstant
		p.lastEnergy, p.evaluated = energy, true
		if out.Energies != nil {
			out.Energies[dynamo.TermDensityFitting] += energy
		}
		p.logger.Debug("density fitting step", "step", in.Step, "similarity", similarity, "energy", energy)
	}
	return nil
}

func (p *impl) backProject(gradient grid.View, amplitudes []float64) {
	n := len(p.transformed)
	p.forces = resize(p.forces, n)

	if p.parallelChunk <= 0 || n <= p.parallelChunk {
		for i, r := range p.transformed {
			p.forces[i] = p.force.EvaluateForce(gauss.Kernel{Position: r, Amplitude: amplitudes[i]}, gradient)
		}
		return
	}

	dynamo.ParallelFor(n, p.parallelChunk, func(start, end int) {
		force := fitforce.New(p.shape)
		for i := start; i < end; i++ {
			p.forces[i] = force.EvaluateForce(gauss.Kernel{Position: p.transformed[i], Amplitude: amplitudes[i]}, gradient)
		}
	})
}

func resize(xs []dynamo.Vec3, n int) []dynamo.Vec3 {
	if cap(xs) < n {
		return make([]dynamo.Vec3, n)
	}
	return xs[:n]
}
