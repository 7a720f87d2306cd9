package matching

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when an index is built over no road segments.
	ErrEmptyInput = errors.New("empty road segment set")
	// ErrEmptyRoadNetwork is returned when a matcher is created without a usable index.
	ErrEmptyRoadNetwork = fmt.Errorf("empty road network: %w", ErrEmptyInput)

	ErrInvalidPoint = errors.New("invalid trajectory point")
	ErrNoCandidate  = errors.New("no candidate segment")
)

// MatchError aborts a trajectory run at point Index. Partial holds the records
// produced before the failure; it is never a complete result.
type MatchError struct {
	Index   int
	Err     error
	Partial []MatchedRecord
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("match failed at point %d: %v", e.Index, e.Err)
}

func (e *MatchError) Unwrap() error {
	return e.Err
}

// Incomplete reports that Partial is not the full output.
func (e *MatchError) Incomplete() bool {
	return true
}
