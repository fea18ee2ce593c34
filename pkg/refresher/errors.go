package refresher

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeFailure classifies a router that reported failure, returned an
	// error or panicked while refreshing.
	ErrNodeFailure = errors.New("refresh node failure")
	// ErrBatchTimeout classifies a cycle whose shared deadline elapsed before
	// every router answered.
	ErrBatchTimeout = errors.New("refresh batch timeout")
	// ErrInterruptedWait classifies a cycle whose caller stopped waiting.
	ErrInterruptedWait = errors.New("refresh wait interrupted")
	// ErrCacheCreation classifies failures building an admin client for a router.
	ErrCacheCreation = errors.New("refresh client creation failed")
	// ErrCycleInProgress is returned when a cycle is requested while another runs.
	ErrCycleInProgress = errors.New("refresh cycle in progress")
	// ErrDirectory classifies failures listing the routers.
	ErrDirectory = errors.New("refresh directory error")
	// ErrInvalidArgument classifies invalid caller arguments.
	ErrInvalidArgument = errors.New("refresh invalid argument")
	// ErrClosed classifies operations performed on a stopped service.
	ErrClosed = errors.New("refresh service closed")
)

func refreshError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
