package logger

import (
	"context"
	"sync"
	"testing"
)

type countingLogger struct {
	mu    sync.Mutex
	count int
}

func (l *countingLogger) inc() {
	l.mu.Lock()
	l.count++
	l.mu.Unlock()
}

func (l *countingLogger) Debug(string, ...any)               { l.inc() }
func (l *countingLogger) Info(string, ...any)                { l.inc() }
func (l *countingLogger) Warn(string, ...any)                { l.inc() }
func (l *countingLogger) Error(string, ...any)               { l.inc() }
func (l *countingLogger) With(...any) Logger                 { return l }
func (l *countingLogger) WithContext(context.Context) Logger { return l }

func TestWrapAsync_DisabledReturnsBase(t *testing.T) {
	base := &countingLogger{}
	if got := WrapAsync(base, AsyncConfig{}); got != Logger(base) {
		t.Fatal("expected base logger when async is disabled")
	}
}

func TestAsyncLogger_CloseDrainsQueue(t *testing.T) {
	base := &countingLogger{}
	log := WrapAsync(base, AsyncConfig{Enabled: true, QueueSize: 4}).(*AsyncLogger)

	for i := 0; i < 50; i++ {
		log.Info("entry", "i", i)
	}
	log.Close()

	base.mu.Lock()
	defer base.mu.Unlock()
	if base.count != 50 {
		t.Fatalf("expected 50 entries, got %d", base.count)
	}
}

func TestAsyncLogger_WritesSynchronouslyAfterClose(t *testing.T) {
	base := &countingLogger{}
	log := WrapAsync(base, AsyncConfig{Enabled: true}).(*AsyncLogger)
	log.Close()
	log.Close()

	log.Warn("late")

	base.mu.Lock()
	defer base.mu.Unlock()
	if base.count != 1 {
		t.Fatalf("expected late entry to be written, got %d", base.count)
	}
}
