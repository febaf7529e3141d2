// Package atomset tracks which particles a process owns.
package atomset

import (
	"fmt"
	"strings"

	"github.com/san-kum/densfit/internal/dynamo"
)

// LocalAtomSet is the list of global particle indices owned by one process.
// The list may change between steps when load is rebalanced.
type LocalAtomSet struct {
	index []int
}

func New(index []int) *LocalAtomSet {
	s := &LocalAtomSet{}
	s.SetLocalIndex(index)
	return s
}

func (s *LocalAtomSet) NumAtomsLocal() int { return len(s.index) }
func (s *LocalAtomSet) LocalIndex() []int  { return s.index }

func (s *LocalAtomSet) SetLocalIndex(index []int) {
	s.index = append(s.index[:0], index...)
}

type Strategy int

const (
	Block Strategy = iota
	RoundRobin
)

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block", "":
		return Block, nil
	case "round-robin", "roundrobin":
		return RoundRobin, nil
	}
	return 0, fmt.Errorf("%w: partition strategy %q", dynamo.ErrUnknownMethod, s)
}

func (s Strategy) String() string {
	if s == RoundRobin {
		return "round-robin"
	}
	return "block"
}

// Partition splits particles [0, n) into ranks disjoint index sets. Ranks
// may receive no particles when n < ranks.
func Partition(n, ranks int, strategy Strategy) ([][]int, error) {
	if ranks < 1 {
		return nil, fmt.Errorf("%w: %d ranks", dynamo.ErrInvalidParameter, ranks)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %d particles", dynamo.ErrInvalidParameter, n)
	}

	parts := make([][]int, ranks)
	switch strategy {
	case RoundRobin:
		for i := 0; i < n; i++ {
			parts[i%ranks] = append(parts[i%ranks], i)
		}
	default:
		chunk := (n + ranks - 1) / ranks
		for r := range parts {
			start := min(r*chunk, n)
			end := min(start+chunk, n)
			parts[r] = make([]int, 0, end-start)
			for i := start; i < end; i++ {
				parts[r] = append(parts[r], i)
			}
		}
	}
	return parts, nil
}
