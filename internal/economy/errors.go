package economy

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotNotFound is returned when a claim references an unknown slot.
	ErrSlotNotFound = errors.New("reward slot not found")
	// ErrAlreadyClaimed is returned when a slot has already been redeemed.
	ErrAlreadyClaimed = errors.New("reward slot already claimed")
	// ErrTaskNotFound is returned by task-list transitions for unknown ids.
	ErrTaskNotFound = errors.New("task not found")
)

// InsufficientPointsError reports how many points a claim is missing.
// It is an expected outcome and should be shown to the user, not treated as fatal.
type InsufficientPointsError struct {
	Threshold int
	Available int
	Shortfall int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("need %d more points (cost %d, available %d)", e.Shortfall, e.Threshold, e.Available)
}
