package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/densfit/internal/dynamo"
)

// RMSD is the root mean square deviation of the observed positions from a
// fixed target structure, without superposition.
type RMSD struct {
	name   string
	target []dynamo.Vec3
	sq     []float64
	value  float64
}

func NewRMSD(target []dynamo.Vec3) *RMSD {
	return &RMSD{
		name:   "rmsd",
		target: append([]dynamo.Vec3(nil), target...),
		sq:     make([]float64, len(target)),
	}
}

func (r *RMSD) Name() string { return r.name }

func (r *RMSD) Observe(x []dynamo.Vec3, _ *dynamo.Energies, _ int64) {
	r.value = Deviation(x, r.target, r.sq)
}

func (r *RMSD) Value() float64 { return r.value }

func (r *RMSD) Reset() { r.value = 0 }

// Deviation returns the RMSD between a and b over their common prefix. buf
// is scratch space and may be nil.
func Deviation(a, b []dynamo.Vec3, buf []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	if cap(buf) < n {
		buf = make([]float64, n)
	}
	buf = buf[:n]
	for i := range buf {
		d := a[i].Sub(b[i])
		buf[i] = d.Dot(d)
	}
	return math.Sqrt(stat.Mean(buf, nil))
}

// Displacement is the largest distance any particle moved from where it was
// first observed.
type Displacement struct {
	name    string
	initial []dynamo.Vec3
	max     float64
}

func NewDisplacement() *Displacement {
	return &Displacement{name: "max_displacement"}
}

func (d *Displacement) Name() string { return d.name }

func (d *Displacement) Observe(x []dynamo.Vec3, _ *dynamo.Energies, _ int64) {
	if d.initial == nil {
		d.initial = append([]dynamo.Vec3{}, x...)
		return
	}
	for i := range min(len(x), len(d.initial)) {
		d.max = math.Max(d.max, x[i].Sub(d.initial[i]).Norm())
	}
}

func (d *Displacement) Value() float64 { return d.max }

func (d *Displacement) Reset() {
	d.initial = nil
	d.max = 0
}
