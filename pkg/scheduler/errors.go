package scheduler

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps one of them.
var (
	// ErrValidation marks bad runtime or provider configuration.
	ErrValidation = errors.New("scheduler validation error")
	// ErrConflict marks a lost lease or a runtime that is already running.
	ErrConflict = errors.New("scheduler conflict")
	// ErrRetryable marks transient lock store failures.
	ErrRetryable = errors.New("scheduler retryable error")
	// ErrInvalidArgument marks a nil or empty argument.
	ErrInvalidArgument = errors.New("scheduler invalid argument")
	// ErrNotInitialized marks use of a zero-value provider or runtime.
	ErrNotInitialized = errors.New("scheduler not initialized")
	// ErrClosed is returned by a provider after Close.
	ErrClosed = errors.New("scheduler closed")
)

func schedulerError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
