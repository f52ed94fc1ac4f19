package optimization

import (
	"errors"
	"fmt"
)

// ErrEmptySpace is returned when a search space has no dimensions or a
// dimension has no values.
var ErrEmptySpace = errors.New("empty search space")

// EmptyResultError is returned when a search produced no record to reduce
// over: every combination failed or was filtered out.
type EmptyResultError struct {
	Engine    string
	Evaluated int
	Failed    int
	Filtered  int
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s: all evaluations failed (evaluated %d, failed %d, filtered %d)",
		e.Engine, e.Evaluated, e.Failed, e.Filtered)
}

// InsufficientSamplesError is returned by random search when the space
// cannot supply the requested number of unique valid combinations.
type InsufficientSamplesError struct {
	Requested int
	Collected int
	Attempts  int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("collected %d of %d unique parameter sets after %d attempts",
		e.Collected, e.Requested, e.Attempts)
}
