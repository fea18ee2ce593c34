package refresher

import (
	"context"
	"sync"
	"time"

	"github.com/nimburion/mountsync/pkg/observability/logger"
	"github.com/nimburion/mountsync/pkg/observability/tracing"
)

// Sweepable is a cache whose expired entries can be evicted.
type Sweepable interface {
	Sweep() int
}

// Sweeper evicts expired admin clients on a fixed delay: the next sweep is
// scheduled period after the previous one finished.
type Sweeper struct {
	cache  Sweepable
	period time.Duration
	log    logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a stopped sweeper.
func NewSweeper(cache Sweepable, period time.Duration, log logger.Logger) (*Sweeper, error) {
	if cache == nil {
		return nil, refreshError(ErrInvalidArgument, "cache is required")
	}
	if period <= 0 {
		return nil, refreshError(ErrInvalidArgument, "sweep period must be positive")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{cache: cache, period: period, log: log.With("component", "client-cache-sweeper")}, nil
}

// Start launches the sweep loop. Starting a running sweeper is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.Debug("client cache sweeper started", "period", s.period)
}

// Stop cancels the loop and waits for it to exit or for ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		s.log.Debug("client cache sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepOnce runs a single sweep and returns the number of evicted clients.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	_, span := tracing.StartRefreshSpan(ctx, tracing.SpanOperationCacheSweep)
	defer span.End()

	evicted := s.cache.Sweep()
	recordSweep(evicted)
	if evicted > 0 {
		s.log.Debug("evicted expired admin clients", "count", evicted)
	}
	tracing.RecordSuccess(span)
	return evicted
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.period)
		}
	}
}
