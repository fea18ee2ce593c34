package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nimburion/mountsync/pkg/observability/logger"
)

const (
	DefaultJobName = "mount-table-refresh"
	DefaultLockKey = "refresh-cycle"
	DefaultLockTTL = 30 * time.Second
)

// Config controls the periodic runtime.
type Config struct {
	// Name labels logs and metrics for the job.
	Name string
	// Interval is the delay between the end of one run and the start of the next.
	Interval time.Duration
	// RunOnStart runs the job once immediately when Start is called.
	RunOnStart bool
	// LockKey is the lease key shared by every coordinator replica.
	LockKey string
	// LockTTL bounds how long a crashed replica can hold the lease.
	LockTTL time.Duration
	// RenewInterval defaults to a third of LockTTL.
	RenewInterval time.Duration
}

func (c *Config) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = DefaultJobName
	}
	c.LockKey = strings.TrimSpace(c.LockKey)
	if c.LockKey == "" {
		c.LockKey = DefaultLockKey
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.RenewInterval <= 0 || c.RenewInterval >= c.LockTTL {
		c.RenewInterval = c.LockTTL / 3
	}
}

// Runtime runs a job at a fixed delay, holding a distributed lease for the
// duration of every run so that only one replica refreshes at a time.
type Runtime struct {
	job  Job
	lock LockProvider
	log  logger.Logger

	config Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRuntime creates a periodic runtime.
func NewRuntime(job Job, lockProvider LockProvider, log logger.Logger, cfg Config) (*Runtime, error) {
	if job == nil {
		return nil, schedulerError(ErrInvalidArgument, "job is required")
	}
	if lockProvider == nil {
		return nil, schedulerError(ErrInvalidArgument, "lock provider is required")
	}
	if log == nil {
		return nil, schedulerError(ErrInvalidArgument, "logger is required")
	}
	if cfg.Interval <= 0 {
		return nil, schedulerError(ErrValidation, "interval must be > 0")
	}

	cfg.normalize()
	return &Runtime{
		job:    job,
		lock:   lockProvider,
		log:    log.With("job", cfg.Name),
		config: cfg,
	}, nil
}

// Start runs the job loop until ctx is cancelled or Stop is called.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return schedulerError(ErrNotInitialized, "scheduler runtime is not initialized")
	}
	if ctx == nil {
		return schedulerError(ErrInvalidArgument, "context is required")
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return schedulerError(ErrConflict, "scheduler already running")
	}
	runningCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	r.log.Info("scheduler started", "interval", r.config.Interval, "run_on_start", r.config.RunOnStart)
	go r.loop(runningCtx)

	<-runningCtx.Done()
	return r.Stop(context.Background())
}

// Stop requests shutdown and waits for the active run to finish.
func (r *Runtime) Stop(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.cancel = nil
	r.running = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	waitCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waitCh:
		r.log.Info("scheduler stopped")
		return nil
	}
}

// trigger runs the job once outside the schedule. It reports false when another
// replica holds the lease.
func (r *Runtime) trigger(ctx context.Context) (bool, error) {
	if r == nil {
		return false, schedulerError(ErrNotInitialized, "scheduler runtime is not initialized")
	}
	if ctx == nil {
		return false, schedulerError(ErrInvalidArgument, "context is required")
	}
	return r.runOnce(ctx)
}

func (r *Runtime) loop(ctx context.Context) {
	defer r.wg.Done()

	wait := r.config.Interval
	if r.config.RunOnStart {
		wait = 0
	}

	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := r.runOnce(ctx); err != nil {
			r.log.Error("scheduled run failed", "error", err)
		}
		wait = r.config.Interval
	}
}

func (r *Runtime) runOnce(ctx context.Context) (bool, error) {
	lease, acquired, err := r.lock.Acquire(ctx, r.config.LockKey, r.config.LockTTL)
	if err != nil {
		recordSchedulerRun(r.config.Name, runStatusLockError)
		return false, fmt.Errorf("acquire lock failed: %w", err)
	}
	if !acquired {
		recordSchedulerRun(r.config.Name, runStatusSkipped)
		r.log.Debug("refresh lease held by another replica, skipping run", "key", r.config.LockKey)
		return false, nil
	}

	incrementSchedulerInFlight(r.config.Name)
	defer decrementSchedulerInFlight(r.config.Name)

	renewCtx, stopRenew := context.WithCancel(ctx)
	var renewWG sync.WaitGroup
	renewWG.Go(func() { r.renewLoop(renewCtx, lease) })

	jobErr := r.invoke(ctx)

	stopRenew()
	renewWG.Wait()

	releaseErr := r.lock.Release(context.WithoutCancel(ctx), lease)
	if releaseErr != nil {
		releaseErr = fmt.Errorf("release lock failed: %w", releaseErr)
	}

	if jobErr != nil {
		recordSchedulerRun(r.config.Name, runStatusError)
	} else {
		recordSchedulerRun(r.config.Name, runStatusOK)
	}
	if jobErr != nil || releaseErr != nil {
		return true, errors.Join(jobErr, releaseErr)
	}
	return true, nil
}

func (r *Runtime) invoke(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("job panicked: %v", recovered)
		}
	}()
	return r.job(ctx)
}

func (r *Runtime) renewLoop(ctx context.Context, lease *LockLease) {
	ticker := time.NewTicker(r.config.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := r.lock.Renew(ctx, lease, r.config.LockTTL); err != nil {
			if ctx.Err() != nil {
				return
			}
			recordSchedulerLockRenew(r.config.Name, "error")
			r.log.Warn("refresh lease renewal failed", "key", lease.Key, "error", err)
			if errors.Is(err, ErrConflict) {
				return
			}
			continue
		}
		recordSchedulerLockRenew(r.config.Name, "ok")
	}
}
