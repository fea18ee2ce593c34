package refresher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Outcome is the state of one refresh task.
type Outcome int32

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "pending"
	}
}

// Reloader asks one router to reload its mount table. It reports whether the
// router accepted the reload.
type Reloader interface {
	Refresh(ctx context.Context) (bool, error)
}

// LocalReloadFunc reloads the mount table of the router this process runs
// next to, without going through a remote admin client.
type LocalReloadFunc func(ctx context.Context, adminAddress string) (bool, error)

type localReloader struct {
	address string
	reload  LocalReloadFunc
}

func (r localReloader) Refresh(ctx context.Context) (bool, error) {
	return r.reload(ctx, r.address)
}

// ReloaderFunc adapts a function to Reloader.
type ReloaderFunc func(ctx context.Context) (bool, error)

// Refresh calls f.
func (f ReloaderFunc) Refresh(ctx context.Context) (bool, error) { return f(ctx) }

// Task is the refresh of a single router within one cycle. A task is executed
// once; its outcome is safe to read while it is still running.
type Task struct {
	adminAddress string
	reloader     Reloader
	local        bool

	outcome atomic.Int32
	mu      sync.Mutex
	err     error
}

// NewTask creates a pending task refreshing adminAddress through reloader.
func NewTask(adminAddress string, reloader Reloader) *Task {
	return &Task{adminAddress: adminAddress, reloader: reloader}
}

func newLocalTask(adminAddress string, reload LocalReloadFunc) *Task {
	task := NewTask(adminAddress, localReloader{address: adminAddress, reload: reload})
	task.local = true
	return task
}

// AdminAddress returns the router admin address this task targets.
func (t *Task) AdminAddress() string { return t.adminAddress }

// Local reports whether the task refreshes the local router.
func (t *Task) Local() bool { return t.local }

// Outcome returns the current outcome.
func (t *Task) Outcome() Outcome { return Outcome(t.outcome.Load()) }

// Err returns the error captured by a failed execution, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Execute invokes the reloader once. Errors and panics are captured as a
// failure and never propagate.
func (t *Task) Execute(ctx context.Context) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			t.fail(fmt.Errorf("%w: %s: panic: %v", ErrNodeFailure, t.adminAddress, r))
			outcome = OutcomeFailure
		}
	}()

	if t.reloader == nil {
		t.fail(refreshError(ErrNodeFailure, t.adminAddress+": no reloader"))
		return OutcomeFailure
	}

	ok, err := t.reloader.Refresh(ctx)
	if err != nil {
		t.fail(fmt.Errorf("%w: %s: %w", ErrNodeFailure, t.adminAddress, err))
		return OutcomeFailure
	}
	if !ok {
		t.fail(nil)
		return OutcomeFailure
	}
	t.outcome.Store(int32(OutcomeSuccess))
	return OutcomeSuccess
}

func (t *Task) fail(err error) {
	if err != nil {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}
	t.outcome.Store(int32(OutcomeFailure))
}
