// Package refresher coordinates mount table refresh cycles across routers.
//
// A cycle lists the routers, builds one task per router with an enabled admin
// interface, runs every task concurrently, waits for all of them under a
// single shared deadline, then tallies the outcomes. Routers that failed or
// did not answer in time have their cached admin client invalidated so the
// next cycle reconnects.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nimburion/mountsync/pkg/clientcache"
	"github.com/nimburion/mountsync/pkg/directory"
	"github.com/nimburion/mountsync/pkg/observability/logger"
	"github.com/nimburion/mountsync/pkg/observability/tracing"
)

// DefaultBatchTimeout bounds the wait for all routers of one cycle.
const DefaultBatchTimeout = 10 * time.Second

// ClientCache is the admin client cache used by the service.
type ClientCache interface {
	ClientSource
	Invalidate(adminAddress string)
	Sweep() int
	CleanUp() int
}

// Options configures a Service.
type Options struct {
	// BatchTimeout is the single deadline shared by all tasks of a cycle.
	BatchTimeout time.Duration
	// SweepPeriod defaults to the cache max lifetime.
	SweepPeriod time.Duration
	// LocalMarker identifies the local router; defaults to "local".
	LocalMarker string
	// LocalReload refreshes the local router when the default task factory is used.
	LocalReload LocalReloadFunc
	// AllowConcurrentCycles lets cycles overlap instead of rejecting a second
	// caller with ErrCycleInProgress.
	AllowConcurrentCycles bool
	// CancelOnTimeout cancels the context of tasks still running once the wait
	// ends. Otherwise they run to completion and their late outcome is ignored.
	CancelOnTimeout bool
	// NewCycleID overrides cycle id generation.
	NewCycleID func() string
}

func (o *Options) normalize(clients ClientCache) {
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = DefaultBatchTimeout
	}
	if o.SweepPeriod <= 0 {
		o.SweepPeriod = clientcache.DefaultMaxLifetime
		if withLifetime, ok := clients.(interface{ MaxLifetime() time.Duration }); ok && withLifetime.MaxLifetime() > 0 {
			o.SweepPeriod = withLifetime.MaxLifetime()
		}
	}
	if strings.TrimSpace(o.LocalMarker) == "" {
		o.LocalMarker = DefaultLocalMarker
	}
	if o.NewCycleID == nil {
		o.NewCycleID = uuid.NewString
	}
}

// Result summarizes one refresh cycle.
type Result struct {
	CycleID     string        `json:"cycle_id" yaml:"cycle_id"`
	Success     int           `json:"success_count" yaml:"success_count"`
	Failure     int           `json:"failure_count" yaml:"failure_count"`
	Skipped     int           `json:"skipped_count" yaml:"skipped_count"`
	TimedOut    bool          `json:"timed_out" yaml:"timed_out"`
	Interrupted bool          `json:"interrupted" yaml:"interrupted"`
	Failed      []string      `json:"failed,omitempty" yaml:"failed,omitempty"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Err summarizes an unsuccessful cycle as an error, or returns nil when every
// router refreshed.
func (r Result) Err() error {
	var errs []error
	if r.TimedOut {
		errs = append(errs, ErrBatchTimeout)
	}
	if r.Interrupted {
		errs = append(errs, ErrInterruptedWait)
	}
	if r.Failure > 0 {
		errs = append(errs, fmt.Errorf("%w: %d router(s): %s", ErrNodeFailure, r.Failure, strings.Join(r.Failed, ", ")))
	}
	return errors.Join(errs...)
}

// Service runs refresh cycles and owns the admin client cache lifecycle.
type Service struct {
	directory directory.Directory
	clients   ClientCache
	tasks     TaskFactory
	log       logger.Logger
	opts      Options

	cycling atomic.Bool
	last    atomic.Pointer[Result]

	mu      sync.Mutex
	sweeper *Sweeper
	started bool
	stopped bool
}

// New creates a Service. When tasks is nil the default factory is used:
// local routers through opts.LocalReload, others through clients.
func New(dir directory.Directory, clients ClientCache, tasks TaskFactory, log logger.Logger, opts Options) (*Service, error) {
	if dir == nil {
		return nil, refreshError(ErrInvalidArgument, "directory is required")
	}
	if clients == nil {
		return nil, refreshError(ErrInvalidArgument, "client cache is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	opts.normalize(clients)

	if tasks == nil {
		factory, err := NewTaskFactory(clients, opts.LocalMarker, opts.LocalReload)
		if err != nil {
			return nil, err
		}
		tasks = factory
	}

	return &Service{
		directory: dir,
		clients:   clients,
		tasks:     tasks,
		log:       log.With("component", "mount-table-refresher"),
		opts:      opts,
	}, nil
}

// Init warms the client cache with the routers currently listed and starts
// the sweeper. Failures while warming are logged and do not fail Init.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return refreshError(ErrClosed, "service stopped")
	}
	if s.started {
		return nil
	}

	s.prepopulate(ctx)

	sweeper, err := NewSweeper(s.clients, s.opts.SweepPeriod, s.log)
	if err != nil {
		return err
	}
	sweeper.Start()
	s.sweeper = sweeper
	s.started = true

	s.log.Info("mount table refresher initialized",
		"batch_timeout", s.opts.BatchTimeout,
		"sweep_period", s.opts.SweepPeriod,
	)
	return nil
}

func (s *Service) prepopulate(ctx context.Context) {
	nodes, err := s.directory.ListNodes(ctx)
	if err != nil {
		s.log.Warn("failed to list routers for client cache warm-up", "error", err)
		return
	}
	for _, node := range nodes {
		addr := strings.TrimSpace(node.AdminAddress)
		if addr == "" || IsLocalAdmin(addr, s.opts.LocalMarker) {
			continue
		}
		if _, err := s.clients.GetOrCreate(ctx, addr); err != nil {
			s.log.Warn("failed to create admin client", "admin_address", addr, "error", err)
		}
	}
}

// Stop stops the sweeper and closes every cached admin client. Stop is
// idempotent.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	sweeper := s.sweeper
	s.sweeper = nil
	s.mu.Unlock()

	var errs []error
	if sweeper != nil {
		if err := sweeper.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop sweeper: %w", err))
		}
	}
	closed := s.clients.CleanUp()
	s.log.Info("mount table refresher stopped", "closed_clients", closed)
	return errors.Join(errs...)
}

// LastResult returns the result of the most recent completed cycle.
func (s *Service) LastResult() (Result, bool) {
	last := s.last.Load()
	if last == nil {
		return Result{}, false
	}
	return *last, true
}

// Refresh runs one refresh cycle. Only a directory failure, a stopped service
// or a concurrent cycle produce an error; router failures are reported in the
// Result.
func (s *Service) Refresh(ctx context.Context) (Result, error) {
	if s.isStopped() {
		return Result{}, refreshError(ErrClosed, "service stopped")
	}
	if !s.opts.AllowConcurrentCycles {
		if !s.cycling.CompareAndSwap(false, true) {
			recordCycle(cycleStatusSkipped, 0)
			return Result{}, refreshError(ErrCycleInProgress, "another refresh cycle is running")
		}
		defer s.cycling.Store(false)
	}

	result := Result{CycleID: s.opts.NewCycleID(), StartedAt: time.Now()}
	ctx = logger.ContextWithCycleID(ctx, result.CycleID)
	log := s.log.WithContext(ctx)

	ctx, span := tracing.StartRefreshSpan(ctx, tracing.SpanOperationRefreshCycle, tracing.WithCycleID(result.CycleID))
	defer span.End()

	nodes, err := s.listNodes(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrDirectory, err)
		log.Error("failed to list routers", "error", err)
		tracing.RecordError(span, err)
		result.Duration = time.Since(result.StartedAt)
		recordCycle(cycleStatusError, result.Duration)
		return result, err
	}

	tasks := s.buildTasks(ctx, log, nodes, &result)
	if len(tasks) == 0 && result.Failure == 0 {
		result.Duration = time.Since(result.StartedAt)
		recordCycle(cycleStatusEmpty, result.Duration)
		s.last.Store(&result)
		return result, nil
	}

	s.await(ctx, log, tasks, &result)
	s.report(log, tasks, &result)

	result.Duration = time.Since(result.StartedAt)
	recordCycle(cycleStatus(result), result.Duration)
	tracing.SetCycleTally(span, result.Success, result.Failure, result.TimedOut)
	if err := result.Err(); err != nil {
		tracing.RecordError(span, err)
	} else {
		tracing.RecordSuccess(span)
	}
	s.last.Store(&result)
	return result, nil
}

func (s *Service) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Service) listNodes(ctx context.Context) ([]directory.NodeDescriptor, error) {
	ctx, span := tracing.StartRefreshSpan(ctx, tracing.SpanOperationDirectoryList)
	defer span.End()

	nodes, err := s.directory.ListNodes(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	tracing.RecordSuccess(span)
	return nodes, nil
}

// buildTasks creates one task per router with an enabled admin interface.
// A router whose task cannot be built counts as failed right away.
func (s *Service) buildTasks(ctx context.Context, log logger.Logger, nodes []directory.NodeDescriptor, result *Result) []*Task {
	tasks := make([]*Task, 0, len(nodes))
	for _, node := range nodes {
		addr := strings.TrimSpace(node.AdminAddress)
		if addr == "" {
			result.Skipped++
			continue
		}

		task, err := s.tasks.CreateTask(ctx, addr)
		if err == nil && task == nil {
			err = refreshError(ErrCacheCreation, addr+": no task built")
		}
		if err != nil {
			if !errors.Is(err, ErrCacheCreation) {
				err = fmt.Errorf("%w: %s: %w", ErrCacheCreation, addr, err)
			}
			log.Error("Exception "+err.Error(), "admin_address", addr)
			recordNode(nodeOutcomeCreationFailure)
			result.Failure++
			result.Failed = append(result.Failed, addr)
			s.clients.Invalidate(addr)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// await runs every task on its own goroutine and returns when all finished,
// the batch timeout elapsed or ctx was cancelled, whichever comes first.
func (s *Service) await(ctx context.Context, log logger.Logger, tasks []*Task, result *Result) {
	if len(tasks) == 0 {
		return
	}

	runCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if s.opts.CancelOnTimeout {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Go(func() { s.execute(runCtx, task) })
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.opts.BatchTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		result.TimedOut = true
		log.Warn("Mount table cache refresh timed out",
			"timeout", s.opts.BatchTimeout,
			"pending", countPending(tasks),
		)
	case <-ctx.Done():
		result.Interrupted = true
		log.Warn("Mount table cache refresher was interrupted.")
	}
}

func (s *Service) execute(ctx context.Context, task *Task) {
	refreshInFlight.Inc()
	defer refreshInFlight.Dec()

	ctx, span := tracing.StartRefreshSpan(ctx, tracing.SpanOperationRefreshNode,
		tracing.WithAdminAddress(task.AdminAddress()),
		tracing.WithLocal(task.Local()),
	)
	defer span.End()

	if task.Execute(ctx) == OutcomeSuccess {
		tracing.RecordSuccess(span)
		return
	}
	err := task.Err()
	if err == nil {
		err = refreshError(ErrNodeFailure, task.AdminAddress()+": router declined refresh")
	}
	tracing.RecordError(span, err)
}

// report tallies task outcomes. Anything but success, including a task still
// running, is a failure and evicts the router's admin client.
func (s *Service) report(log logger.Logger, tasks []*Task, result *Result) {
	for _, task := range tasks {
		addr := task.AdminAddress()
		switch task.Outcome() {
		case OutcomeSuccess:
			result.Success++
			recordNode(nodeOutcomeSuccess)
			continue
		case OutcomePending:
			recordNode(nodeOutcomeTimeout)
		default:
			if err := task.Err(); err != nil {
				log.Error("Exception "+err.Error(), "admin_address", addr)
				recordNode(nodeOutcomeError)
			} else {
				recordNode(nodeOutcomeFailure)
			}
		}
		result.Failure++
		result.Failed = append(result.Failed, addr)
		s.clients.Invalidate(addr)
	}

	if result.Failure != 0 {
		log.Warn("Not all router admins updated their cache", "failed", result.Failed)
	}
	log.Info(fmt.Sprintf("Mount table entries cache refresh successCount=%d,failureCount=%d",
		result.Success, result.Failure))
}

func countPending(tasks []*Task) int {
	pending := 0
	for _, task := range tasks {
		if task.Outcome() == OutcomePending {
			pending++
		}
	}
	return pending
}

func cycleStatus(result Result) string {
	switch {
	case result.Interrupted:
		return cycleStatusInterrupted
	case result.TimedOut:
		return cycleStatusTimeout
	case result.Failure > 0:
		return cycleStatusPartial
	default:
		return cycleStatusOK
	}
}
