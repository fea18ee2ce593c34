package logger

import (
	"context"
	"sync"
	"sync/atomic"
)

// AsyncConfig configures the async logger wrapper.
type AsyncConfig struct {
	Enabled      bool
	QueueSize    int
	DropWhenFull bool
}

type asyncEntry struct {
	emit func(string, ...any)
	msg  string
	args []any
}

type asyncQueue struct {
	entries      chan asyncEntry
	dropWhenFull bool
	dropped      atomic.Uint64
	mu           sync.RWMutex
	closed       bool
	done         chan struct{}
}

// AsyncLogger hands entries to a single writer goroutine so that hot paths such
// as task reporting never block on the log sink.
type AsyncLogger struct {
	base  Logger
	queue *asyncQueue
}

// WrapAsync wraps base with async dispatch when enabled, otherwise returns base.
func WrapAsync(base Logger, cfg AsyncConfig) Logger {
	if !cfg.Enabled {
		return base
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	q := &asyncQueue{
		entries:      make(chan asyncEntry, size),
		dropWhenFull: cfg.DropWhenFull,
		done:         make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		for entry := range q.entries {
			entry.emit(entry.msg, entry.args...)
		}
	}()
	return &AsyncLogger{base: base, queue: q}
}

func (l *AsyncLogger) Debug(msg string, args ...any) { l.enqueue(l.base.Debug, msg, args) }
func (l *AsyncLogger) Info(msg string, args ...any)  { l.enqueue(l.base.Info, msg, args) }
func (l *AsyncLogger) Warn(msg string, args ...any)  { l.enqueue(l.base.Warn, msg, args) }
func (l *AsyncLogger) Error(msg string, args ...any) { l.enqueue(l.base.Error, msg, args) }

func (l *AsyncLogger) With(args ...any) Logger {
	return &AsyncLogger{base: l.base.With(args...), queue: l.queue}
}

func (l *AsyncLogger) WithContext(ctx context.Context) Logger {
	return &AsyncLogger{base: l.base.WithContext(ctx), queue: l.queue}
}

// Dropped reports how many entries were discarded because the queue was full.
func (l *AsyncLogger) Dropped() uint64 {
	return l.queue.dropped.Load()
}

// Close drains pending entries and stops the writer goroutine.
func (l *AsyncLogger) Close() {
	l.queue.mu.Lock()
	if !l.queue.closed {
		l.queue.closed = true
		close(l.queue.entries)
	}
	l.queue.mu.Unlock()
	<-l.queue.done
}

func (l *AsyncLogger) enqueue(emit func(string, ...any), msg string, args []any) {
	l.queue.mu.RLock()
	defer l.queue.mu.RUnlock()
	if l.queue.closed {
		emit(msg, args...)
		return
	}
	entry := asyncEntry{emit: emit, msg: msg, args: args}
	if l.queue.dropWhenFull {
		select {
		case l.queue.entries <- entry:
		default:
			l.queue.dropped.Add(1)
		}
		return
	}
	l.queue.entries <- entry
}
