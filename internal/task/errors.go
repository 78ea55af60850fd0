package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task layer
var (
	ErrQueueClosed       = errors.New("task queue is closed")
	ErrQueueFull         = errors.New("task queue is full")
	ErrUnknownQueue      = errors.New("unknown task queue")
	ErrUnknownTaskType   = errors.New("unknown task type")
	ErrInvalidPayload    = errors.New("invalid task payload")
	ErrTimeLimitExceeded = errors.New("task exceeded its time limit")

	// ErrPermanent marks an execution error that retrying cannot fix.
	ErrPermanent = errors.New("permanent task failure")
)

// Permanent wraps err so the runner fails the task without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
