// Package reduce implements the collective sum that merges per-process
// density grids into one global grid.
//
// Every member of a process group must call the collective exactly once per
// step, including members that own no particles. A failed member aborts the
// whole group; there is no retry.
package reduce

import (
	"context"
	"fmt"
	"sync"

	"github.com/san-kum/densfit/internal/dynamo"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

type single struct{}

func (single) Rank() int                  { return 0 }
func (single) Size() int                  { return 1 }
func (single) SumFloat64([]float64) error { return nil }

// Single is the communicator of a run without peers. Its sum is the identity.
func Single() dynamo.Communicator { return single{} }

// Sum reduces buf over comm, skipping the call when there are no peers.
func Sum(comm dynamo.Communicator, buf []float64) error {
	if comm == nil || comm.Size() <= 1 {
		return nil
	}
	return comm.SumFloat64(buf)
}

// Group is an in-process group of ranks that all-reduce through shared memory.
type Group struct {
	size int

	mu         sync.Mutex
	cond       *sync.Cond
	acc        []float64
	arrived    int
	readers    int
	generation uint64
	err        error
}

func NewGroup(size int) (*Group, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: group size %d", dynamo.ErrInvalidParameter, size)
	}
	g := &Group{size: size}
	g.cond = sync.NewCond(&g.mu)
	return g, nil
}

func (g *Group) Size() int { return g.size }

// Comm returns the communicator of rank r.
func (g *Group) Comm(r int) dynamo.Communicator {
	if r < 0 || r >= g.size {
		panic(fmt.Sprintf("reduce: rank %d outside group of %d", r, g.size))
	}
	return &member{group: g, rank: r}
}

// Abort fails every pending and future collective of the group.
func (g *Group) Abort(cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.abortLocked(cause)
}

func (g *Group) abortLocked(cause error) {
	if g.err != nil {
		return
	}
	g.err = fmt.Errorf("%w: %v", dynamo.ErrCollectiveAborted, cause)
	g.cond.Broadcast()
}

// Err reports the abort cause, if any.
func (g *Group) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *Group) allReduce(buf []float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// the previous result must be fully read before it is overwritten
	for g.readers > 0 && g.err == nil {
		g.cond.Wait()
	}
	if g.err != nil {
		return g.err
	}

	if g.arrived == 0 {
		if cap(g.acc) < len(buf) {
			g.acc = make([]float64, len(buf))
		}
		g.acc = g.acc[:len(buf)]
		clear(g.acc)
	} else if len(buf) != len(g.acc) {
		g.abortLocked(fmt.Errorf("%w: buffer of %d values, peers sent %d",
			dynamo.ErrExtentsMismatch, len(buf), len(g.acc)))
		return g.err
	}

	floats.Add(g.acc, buf)
	g.arrived++

	if g.arrived == g.size {
		g.arrived = 0
		g.readers = g.size
		g.generation++
		g.cond.Broadcast()
	} else {
		gen := g.generation
		for gen == g.generation && g.err == nil {
			g.cond.Wait()
		}
		if gen == g.generation {
			return g.err
		}
	}

	copy(buf, g.acc)
	g.readers--
	if g.readers == 0 {
		g.cond.Broadcast()
	}
	return nil
}

// Run calls fn once per rank, concurrently, and waits for all of them. The
// first failure aborts the group so that peers blocked in a collective
// return instead of deadlocking.
func (g *Group) Run(ctx context.Context, fn func(ctx context.Context, comm dynamo.Communicator) error) error {
	stop := context.AfterFunc(ctx, func() { g.Abort(context.Cause(ctx)) })
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)

	for r := 0; r < g.size; r++ {
		comm := g.Comm(r)
		eg.Go(func() error {
			if err := fn(ctx, comm); err != nil {
				g.Abort(err)
				return &dynamo.SimulationError{Rank: comm.Rank(), Wrapped: err}
			}
			return nil
		})
	}
	return eg.Wait()
}

// Run creates a group of n ranks and runs fn on each of them.
func Run(ctx context.Context, n int, fn func(ctx context.Context, comm dynamo.Communicator) error) error {
	g, err := NewGroup(n)
	if err != nil {
		return err
	}
	return g.Run(ctx, fn)
}

type member struct {
	group *Group
	rank  int
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.group.size }

func (m *member) SumFloat64(buf []float64) error {
	if m.group.size == 1 {
		return m.group.Err()
	}
	return m.group.allReduce(buf)
}
