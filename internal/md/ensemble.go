package md

import (
	"context"
	"sync"
)

// Ensemble runs independent fits from differently seeded starting systems.
type Ensemble struct {
	newSim    func() *Simulator
	numRuns   int
	seedStart int64
}

// NewEnsemble takes a constructor rather than a simulator since metrics and
// observers carry per-run state.
func NewEnsemble(newSim func() *Simulator, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{newSim: newSim, numRuns: numRuns, seedStart: seedStart}
}

func (e *Ensemble) Run(ctx context.Context, newSystem func(seed int64) *System, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sys := newSystem(e.seedStart + int64(idx))
			results[idx], errs[idx] = e.newSim().Run(ctx, sys, cfg)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
