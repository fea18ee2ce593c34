package logger

import (
	"context"
)

// Logger defines the structured logging contract used by every mountsync component.
// All log methods accept a message string followed by key-value pairs for structured fields.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs
	Debug(msg string, args ...any)

	// Info logs an info-level message with optional key-value pairs
	Info(msg string, args ...any)

	// Warn logs a warning-level message with optional key-value pairs
	Warn(msg string, args ...any)

	// Error logs an error-level message with optional key-value pairs
	Error(msg string, args ...any)

	// With creates a child logger with additional key-value pairs that will be
	// included in all subsequent log entries
	With(args ...any) Logger

	// WithContext creates a child logger carrying the refresh cycle id found in ctx
	WithContext(ctx context.Context) Logger
}

type cycleIDKey struct{}

// ContextWithCycleID returns a copy of ctx carrying the refresh cycle id.
func ContextWithCycleID(ctx context.Context, cycleID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, cycleIDKey{}, cycleID)
}

// CycleIDFromContext extracts the refresh cycle id, or "" when absent.
func CycleIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if cycleID, ok := ctx.Value(cycleIDKey{}).(string); ok {
		return cycleID
	}
	return ""
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (l nopLogger) With(...any) Logger {
	return l
}

func (l nopLogger) WithContext(context.Context) Logger {
	return l
}
