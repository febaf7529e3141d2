package densityfit_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/densfit/internal/amplitude"
	"github.com/san-kum/densfit/internal/atomset"
	"github.com/san-kum/densfit/internal/densityfit"
	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/gauss"
	"github.com/san-kum/densfit/internal/grid"
	"github.com/san-kum/densfit/internal/lattice"
	"github.com/san-kum/densfit/internal/measure"
	"github.com/san-kum/densfit/internal/reduce"
)

var identity = lattice.TranslateAndScale{Scale: dynamo.Vec3{1, 1, 1}}

func params(method measure.Method) densityfit.Parameters {
	p := densityfit.DefaultParameters()
	p.SpreadWidth = 1
	p.SpreadRangeInSigma = 5
	p.SimilarityMethod = method
	p.ForceConstant = 10
	return p
}

// spread builds a density by spreading unit kernels at xs.
func spread(ext grid.Extents, sigma, n float64, xs ...dynamo.Vec3) *grid.Grid {
	shape, err := gauss.NewKernelShape(sigma, n, identity.ScaleOperationOnly())
	Expect(err).NotTo(HaveOccurred())
	gt, err := gauss.New(ext, shape)
	Expect(err).NotTo(HaveOccurred())
	for _, x := range xs {
		gt.Add(gauss.Kernel{Position: x, Amplitude: 1})
	}
	return gt.View().(*grid.Grid).Clone()
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func newOutput(n int) (dynamo.ForceProviderOutput, *dynamo.Energies) {
	e := &dynamo.Energies{}
	return dynamo.ForceProviderOutput{Forces: make([]dynamo.Vec3, n), Energies: e}, e
}

// rankComm is a communicator that is never summed over; it only reports a
// rank for steps that skip the collective.
type rankComm struct{ rank, size int }

func (c rankComm) Rank() int                  { return c.rank }
func (c rankComm) Size() int                  { return c.size }
func (c rankComm) SumFloat64([]float64) error { return nil }

type fixedLookup []float64

func (f fixedLookup) Amplitudes(*dynamo.Atoms, []int) ([]float64, error) { return f, nil }

var _ = Describe("ForceProvider", func() {
	ext := grid.Extents{11, 11, 11}
	center := dynamo.Vec3{5, 5, 5}

	Describe("construction", func() {
		reference := spread(ext, 1, 5, center)
		atoms := atomset.New([]int{0})

		DescribeTable("rejects invalid configuration",
			func(mutate func(*densityfit.Parameters)) {
				p := params(measure.InnerProduct)
				mutate(&p)
				_, err := densityfit.New(p, reference, identity, atoms)
				Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
			},
			Entry("zero width", func(p *densityfit.Parameters) { p.SpreadWidth = 0 }),
			Entry("negative width", func(p *densityfit.Parameters) { p.SpreadWidth = -0.1 }),
			Entry("zero range", func(p *densityfit.Parameters) { p.SpreadRangeInSigma = 0 }),
			Entry("zero interval", func(p *densityfit.Parameters) { p.Every = 0 }),
			Entry("infinite force constant", func(p *densityfit.Parameters) { p.ForceConstant = math.Inf(1) }),
		)

		It("rejects a transform without scale on an axis", func() {
			degenerate := lattice.TranslateAndScale{Scale: dynamo.Vec3{1, 0, 1}}
			_, err := densityfit.New(params(measure.InnerProduct), reference, degenerate, atoms)
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})

		It("rejects an unknown similarity measure", func() {
			_, err := densityfit.New(params(measure.Method(42)), reference, identity, atoms)
			Expect(err).To(MatchError(dynamo.ErrUnknownMethod))
		})
	})

	Describe("a single particle on a matching reference", func() {
		var reference *grid.Grid

		BeforeEach(func() {
			reference = spread(ext, 1, 5, center)
		})

		It("has maximal cross-correlation, no force and energy -k", func() {
			p := params(measure.CrossCorrelation)
			provider, err := densityfit.New(p, reference, identity, atomset.New([]int{0}))
			Expect(err).NotTo(HaveOccurred())

			out, energies := newOutput(1)
			in := dynamo.ForceProviderInput{X: []dynamo.Vec3{center}, Comm: reduce.Single()}
			Expect(provider.CalculateForces(in, &out)).To(Succeed())

			for d := 0; d < 3; d++ {
				Expect(out.Forces[0][d]).To(BeNumerically("~", 0, 1e-9))
			}
			Expect(energies[dynamo.TermDensityFitting]).To(BeNumerically("~", -p.ForceConstant, 1e-9))
		})

		It("has zero force and inner-product energy -k Σr²/N", func() {
			p := params(measure.InnerProduct)
			provider, err := densityfit.New(p, reference, identity, atomset.New([]int{0}))
			Expect(err).NotTo(HaveOccurred())

			out, energies := newOutput(1)
			in := dynamo.ForceProviderInput{X: []dynamo.Vec3{center}}
			Expect(provider.CalculateForces(in, &out)).To(Succeed())

			sumSq := 0.0
			for _, v := range reference.Values() {
				sumSq += v * v
			}
			expected := -p.ForceConstant * sumSq / float64(ext.Len())

			Expect(out.Forces[0].Norm()).To(BeNumerically("<", 1e-12))
			Expect(energies[dynamo.TermDensityFitting]).To(BeNumerically("~", expected, 1e-12))
		})

		It("pulls a displaced particle back toward the reference peak", func() {
			provider, err := densityfit.New(params(measure.CrossCorrelation), reference, identity, atomset.New([]int{0}))
			Expect(err).NotTo(HaveOccurred())

			out, _ := newOutput(1)
			in := dynamo.ForceProviderInput{X: []dynamo.Vec3{{5.6, 4.7, 5}}}
			Expect(provider.CalculateForces(in, &out)).To(Succeed())

			Expect(out.Forces[0][0]).To(BeNumerically("<", 0))
			Expect(out.Forces[0][1]).To(BeNumerically(">", 0))
			Expect(out.Forces[0][2]).To(BeNumerically("~", 0, 1e-9))
		})
	})

	Describe("a simulated density equal to the reference", func() {
		xs := []dynamo.Vec3{{3.2, 4.1, 5.5}, {6.3, 5.2, 4.8}, {5.1, 6.9, 6.2}}

		It("has zero cross-correlation gradient and therefore zero force", func() {
			reference := spread(ext, 1, 5, xs...)
			provider, err := densityfit.New(params(measure.CrossCorrelation), reference, identity, atomset.New(allIndices(3)))
			Expect(err).NotTo(HaveOccurred())

			out, _ := newOutput(3)
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs}, &out)).To(Succeed())
			for _, f := range out.Forces {
				Expect(f.Norm()).To(BeNumerically("<", 1e-9))
			}
		})

		It("has zero relative-entropy energy and vanishing force", func() {
			big := grid.Extents{21, 21, 21}
			shifted := make([]dynamo.Vec3, len(xs))
			for i, x := range xs {
				shifted[i] = x.Add(dynamo.Vec3{5, 5, 5})
			}
			reference := spread(big, 1, 5, shifted...)
			provider, err := densityfit.New(params(measure.RelativeEntropy), reference, identity, atomset.New(allIndices(3)))
			Expect(err).NotTo(HaveOccurred())

			out, energies := newOutput(3)
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: shifted}, &out)).To(Succeed())
			Expect(energies[dynamo.TermDensityFitting]).To(BeNumerically("~", 0, 1e-9))
			for _, f := range out.Forces {
				Expect(f.Norm()).To(BeNumerically("<", 1e-4))
			}
		})
	})

	Describe("distributed evaluation", func() {
		xs := []dynamo.Vec3{
			{2.5, 3.1, 4.4}, {5.2, 5.8, 6.1}, {7.7, 4.3, 3.9},
			{4.4, 7.2, 5.5}, {6.6, 6.6, 2.8}, {3.3, 5.5, 7.7},
		}
		reference := spread(ext, 1, 5, center, dynamo.Vec3{4, 6, 5})

		single := func(method measure.Method) ([]dynamo.Vec3, float64) {
			provider, err := densityfit.New(params(method), reference, identity, atomset.New(allIndices(len(xs))))
			Expect(err).NotTo(HaveOccurred())
			out, energies := newOutput(len(xs))
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs, Comm: reduce.Single()}, &out)).To(Succeed())
			return out.Forces, energies[dynamo.TermDensityFitting]
		}

		DescribeTable("reproduces the single-process result",
			func(method measure.Method, parts [][]int) {
				wantForces, wantEnergy := single(method)

				forces := make([]dynamo.Vec3, len(xs))
				energies := make([]dynamo.Energies, len(parts))
				err := reduce.Run(context.Background(), len(parts), func(_ context.Context, comm dynamo.Communicator) error {
					r := comm.Rank()
					provider, err := densityfit.New(params(method), reference, identity, atomset.New(parts[r]))
					if err != nil {
						return err
					}
					out := dynamo.ForceProviderOutput{Forces: forces, Energies: &energies[r]}
					return provider.CalculateForces(dynamo.ForceProviderInput{X: xs, Comm: comm}, &out)
				})
				Expect(err).NotTo(HaveOccurred())

				total := 0.0
				for r := range energies {
					total += energies[r][dynamo.TermDensityFitting]
				}
				Expect(total).To(BeNumerically("~", wantEnergy, 1e-9*math.Max(1, math.Abs(wantEnergy))))
				for i := range xs {
					for d := 0; d < 3; d++ {
						Expect(forces[i][d]).To(BeNumerically("~", wantForces[i][d], 1e-9))
					}
				}
			},
			Entry("two ranks, inner product", measure.InnerProduct, [][]int{{0, 2, 4}, {1, 3, 5}}),
			Entry("three ranks, cross-correlation", measure.CrossCorrelation, [][]int{{0}, {1, 2, 3}, {4, 5}}),
			Entry("one rank without particles", measure.CrossCorrelation, [][]int{{0, 1, 2, 3, 4, 5}, {}}),
			Entry("rank 0 without particles", measure.RelativeEntropy, [][]int{{}, {3, 4, 5}, {0, 1, 2}}),
		)

		It("keeps the collective in step when a rank owns nothing", func() {
			forces := make([]dynamo.Vec3, len(xs))
			var energies [2]dynamo.Energies
			var fitEnergy [2]float64

			err := reduce.Run(context.Background(), 2, func(_ context.Context, comm dynamo.Communicator) error {
				r := comm.Rank()
				local := []int{}
				if r == 1 {
					local = allIndices(len(xs))
				}
				provider, err := densityfit.New(params(measure.InnerProduct), reference, identity, atomset.New(local))
				if err != nil {
					return err
				}
				for step := int64(0); step < 3; step++ {
					out := dynamo.ForceProviderOutput{Forces: forces, Energies: &energies[r]}
					if err := provider.CalculateForces(dynamo.ForceProviderInput{X: xs, Comm: comm, Step: step}, &out); err != nil {
						return err
					}
				}
				fitEnergy[r] = energies[r][dynamo.TermDensityFitting]
				return nil
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(fitEnergy[0]).NotTo(BeZero())
			Expect(fitEnergy[1]).To(BeZero())
		})
	})

	Describe("output accumulation", func() {
		reference := spread(ext, 1, 5, center)
		xs := []dynamo.Vec3{{4.5, 5.5, 5.2}, {5.8, 4.9, 5.1}}

		It("adds to existing forces and energies", func() {
			provider, err := densityfit.New(params(measure.InnerProduct), reference, identity, atomset.New([]int{1}))
			Expect(err).NotTo(HaveOccurred())

			fresh, freshEnergies := newOutput(2)
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs}, &fresh)).To(Succeed())

			out, energies := newOutput(2)
			out.Forces[0] = dynamo.Vec3{1, 2, 3}
			out.Forces[1] = dynamo.Vec3{-1, -1, -1}
			energies[dynamo.TermDensityFitting] = 7
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs}, &out)).To(Succeed())

			Expect(out.Forces[0]).To(Equal(dynamo.Vec3{1, 2, 3}))
			Expect(out.Forces[1]).To(Equal(dynamo.Vec3{-1, -1, -1}.Add(fresh.Forces[1])))
			Expect(energies[dynamo.TermDensityFitting]).To(BeNumerically("~", 7+freshEnergies[dynamo.TermDensityFitting], 1e-12))
		})

		It("follows a local set that changes size between steps", func() {
			local := atomset.New([]int{0})
			provider, err := densityfit.New(params(measure.InnerProduct), reference, identity, local)
			Expect(err).NotTo(HaveOccurred())

			out, _ := newOutput(2)
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs}, &out)).To(Succeed())
			Expect(out.Forces[1]).To(Equal(dynamo.Vec3{}))

			local.SetLocalIndex([]int{0, 1})
			out, _ = newOutput(2)
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs}, &out)).To(Succeed())
			Expect(out.Forces[1].Norm()).To(BeNumerically(">", 0))

			local.SetLocalIndex(nil)
			out, energies := newOutput(2)
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs}, &out)).To(Succeed())
			Expect(out.Forces).To(Equal([]dynamo.Vec3{{}, {}}))
			Expect(energies[dynamo.TermDensityFitting]).To(BeZero())
		})

		It("scales lattice forces back with the inverse lattice scale", func() {
			voxel := lattice.TranslateAndScale{Scale: dynamo.Vec3{2, 2, 2}}
			p := params(measure.InnerProduct)
			p.SpreadWidth = 0.5

			lab := []dynamo.Vec3{{2.4, 2.6, 2.5}}
			latticePos := []dynamo.Vec3{lab[0]}
			voxel.Apply(latticePos)

			scaled, err := densityfit.New(p, reference, voxel, atomset.New([]int{0}))
			Expect(err).NotTo(HaveOccurred())
			unit, err := densityfit.New(params(measure.InnerProduct), reference, identity, atomset.New([]int{0}))
			Expect(err).NotTo(HaveOccurred())

			outScaled, _ := newOutput(1)
			outUnit, _ := newOutput(1)
			Expect(scaled.CalculateForces(dynamo.ForceProviderInput{X: lab}, &outScaled)).To(Succeed())
			Expect(unit.CalculateForces(dynamo.ForceProviderInput{X: latticePos}, &outUnit)).To(Succeed())

			for d := 0; d < 3; d++ {
				Expect(outScaled.Forces[0][d]).To(BeNumerically("~", outUnit.Forces[0][d]/2, 1e-12))
			}
		})
	})

	Describe("evaluation interval", func() {
		reference := spread(ext, 1, 5, center)
		xs := []dynamo.Vec3{{4.6, 5.3, 5.2}}

		It("skips off-interval steps and scales forces on the others", func() {
			base, err := densityfit.New(params(measure.InnerProduct), reference, identity, atomset.New([]int{0}))
			Expect(err).NotTo(HaveOccurred())
			want, wantEnergies := newOutput(1)
			Expect(base.CalculateForces(dynamo.ForceProviderInput{X: xs}, &want)).To(Succeed())

			p := params(measure.InnerProduct)
			p.Every = 4
			provider, err := densityfit.New(p, reference, identity, atomset.New([]int{0}))
			Expect(err).NotTo(HaveOccurred())

			out, energies := newOutput(1)
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs, Step: 3}, &out)).To(Succeed())
			Expect(out.Forces[0]).To(Equal(dynamo.Vec3{}))
			Expect(energies[dynamo.TermDensityFitting]).To(BeZero())

			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs, Step: 8}, &out)).To(Succeed())
			for d := 0; d < 3; d++ {
				Expect(out.Forces[0][d]).To(BeNumerically("~", 4*want.Forces[0][d], 1e-12))
			}
			Expect(energies[dynamo.TermDensityFitting]).To(BeNumerically("~", wantEnergies[dynamo.TermDensityFitting], 1e-12))

			skipped, skippedEnergies := newOutput(1)
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs, Step: 9}, &skipped)).To(Succeed())
			Expect(skipped.Forces[0]).To(Equal(dynamo.Vec3{}))
			Expect(skippedEnergies[dynamo.TermDensityFitting]).To(BeNumerically("~", wantEnergies[dynamo.TermDensityFitting], 1e-12))
		})

		It("reports the last evaluated energy on rank 0 only", func() {
			p := params(measure.InnerProduct)
			p.Every = 2
			provider, err := densityfit.New(p, reference, identity, atomset.New([]int{0}))
			Expect(err).NotTo(HaveOccurred())

			first, firstEnergies := newOutput(1)
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: xs, Step: 0}, &first)).To(Succeed())
			Expect(firstEnergies[dynamo.TermDensityFitting]).NotTo(BeZero())

			peer, peerEnergies := newOutput(1)
			in := dynamo.ForceProviderInput{X: xs, Step: 1, Comm: rankComm{rank: 1, size: 2}}
			Expect(provider.CalculateForces(in, &peer)).To(Succeed())
			Expect(peerEnergies[dynamo.TermDensityFitting]).To(BeZero())
		})
	})

	Describe("per-step contract violations", func() {
		reference := spread(ext, 1, 5, center)

		It("fails when the amplitude count disagrees with the local particles", func() {
			provider, err := densityfit.New(params(measure.InnerProduct), reference, identity,
				atomset.New([]int{0, 1}), densityfit.WithAmplitudeLookup(fixedLookup{1}))
			Expect(err).NotTo(HaveOccurred())

			out, _ := newOutput(2)
			err = provider.CalculateForces(dynamo.ForceProviderInput{X: []dynamo.Vec3{center, center}}, &out)
			Expect(err).To(MatchError(dynamo.ErrAmplitudeMismatch))
		})

		It("fails when a local index has no coordinate", func() {
			provider, err := densityfit.New(params(measure.InnerProduct), reference, identity, atomset.New([]int{3}))
			Expect(err).NotTo(HaveOccurred())

			out, _ := newOutput(1)
			err = provider.CalculateForces(dynamo.ForceProviderInput{X: []dynamo.Vec3{center}}, &out)
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})

		It("uses mass amplitudes from particle metadata", func() {
			p := params(measure.InnerProduct)
			p.AmplitudeMethod = amplitude.Mass
			provider, err := densityfit.New(p, reference, identity, atomset.New([]int{0}))
			Expect(err).NotTo(HaveOccurred())
			unit, err := densityfit.New(params(measure.InnerProduct), reference, identity, atomset.New([]int{0}))
			Expect(err).NotTo(HaveOccurred())

			x := []dynamo.Vec3{{5.4, 5.1, 4.8}}
			atoms := &dynamo.Atoms{Mass: []float64{3}, Charge: []float64{0}}
			heavy, _ := newOutput(1)
			light, _ := newOutput(1)
			Expect(provider.CalculateForces(dynamo.ForceProviderInput{X: x, Atoms: atoms}, &heavy)).To(Succeed())
			Expect(unit.CalculateForces(dynamo.ForceProviderInput{X: x, Atoms: atoms}, &light)).To(Succeed())

			for d := 0; d < 3; d++ {
				Expect(heavy.Forces[0][d]).To(BeNumerically("~", 3*light.Forces[0][d], 1e-12))
			}
		})

		It("back-projects in parallel with the same result", func() {
			xs := make([]dynamo.Vec3, 64)
			for i := range xs {
				xs[i] = dynamo.Vec3{2 + float64(i%7), 2 + float64(i%5)*1.3, 3 + float64(i%3)*1.7}
			}
			serial, err := densityfit.New(params(measure.CrossCorrelation), reference, identity, atomset.New(allIndices(64)))
			Expect(err).NotTo(HaveOccurred())
			parallel, err := densityfit.New(params(measure.CrossCorrelation), reference, identity, atomset.New(allIndices(64)),
				densityfit.WithParallel(8))
			Expect(err).NotTo(HaveOccurred())

			a, _ := newOutput(64)
			b, _ := newOutput(64)
			Expect(serial.CalculateForces(dynamo.ForceProviderInput{X: xs}, &a)).To(Succeed())
			Expect(parallel.CalculateForces(dynamo.ForceProviderInput{X: xs}, &b)).To(Succeed())
			Expect(b.Forces).To(Equal(a.Forces))
		})
	})
})
