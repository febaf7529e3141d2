package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for density fitting operations.
var (
	// ErrInvalidParameter indicates a configuration value outside its valid range.
	ErrInvalidParameter = errors.New("dynamo: invalid parameter")

	// ErrExtentsMismatch indicates grids of different shape were combined.
	ErrExtentsMismatch = errors.New("dynamo: grid extents mismatch")

	// ErrAmplitudeMismatch indicates amplitudes and local particles disagree in count.
	ErrAmplitudeMismatch = errors.New("dynamo: amplitude count does not match local particle count")

	// ErrCollectiveAborted indicates a peer failed during a collective operation.
	ErrCollectiveAborted = errors.New("dynamo: collective aborted by peer failure")

	// ErrInvalidState indicates non-finite coordinates or forces.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrUnknownMethod indicates an unrecognized method selector.
	ErrUnknownMethod = errors.New("dynamo: unknown method")
)

// SimulationError wraps the failure of one rank during a step.
type SimulationError struct {
	Step    int64
	Rank    int
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d, rank %d: %v", e.Step, e.Rank, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
