package domain

import (
	"context"
	"errors"
)

// TaskState is the lifecycle state of a submitted operation.
type TaskState string

const (
	// StatePending indicates the operation is queued waiting for a slot.
	StatePending TaskState = "Pending"
	// StateRunning indicates the operation holds a slot.
	StateRunning TaskState = "Running"
	// StateCompleted indicates the operation returned a value.
	StateCompleted TaskState = "Completed"
	// StateFailed indicates the operation returned a final error.
	StateFailed TaskState = "Failed"
	// StateCancelled indicates the operation was cancelled, possibly before it ever ran.
	StateCancelled TaskState = "Cancelled"
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// IsCancellation reports whether err signals cancellation rather than a failure.
// A bare context.DeadlineExceeded is not a cancellation: operations commonly
// return it from their own internal timeouts.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
