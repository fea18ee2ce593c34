package testutil

import (
	"context"
	"regexp"
	"sync"

	"github.com/nimburion/mountsync/pkg/observability/logger"
)

// MockLogger captures log entries for assertion in tests. It is safe for use
// from concurrent refresh tasks.
type MockLogger struct {
	mu     sync.Mutex
	logs   []LogEntry
	fields []any
	root   *MockLogger
}

// LogEntry represents a single log entry captured by MockLogger.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

// NewMockLogger returns an empty capturing logger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Debug(msg string, args ...any) { m.record("debug", msg, args) }
func (m *MockLogger) Info(msg string, args ...any)  { m.record("info", msg, args) }
func (m *MockLogger) Warn(msg string, args ...any)  { m.record("warn", msg, args) }
func (m *MockLogger) Error(msg string, args ...any) { m.record("error", msg, args) }

// With returns a child that shares the captured entries and prepends args.
func (m *MockLogger) With(args ...any) logger.Logger {
	fields := append(append([]any{}, m.fields...), args...)
	return &MockLogger{fields: fields, root: m.base()}
}

// WithContext adds the cycle id field when ctx carries one.
func (m *MockLogger) WithContext(ctx context.Context) logger.Logger {
	if cycleID := logger.CycleIDFromContext(ctx); cycleID != "" {
		return m.With("cycle_id", cycleID)
	}
	return m
}

// Entries returns a snapshot of all captured entries.
func (m *MockLogger) Entries() []LogEntry {
	base := m.base()
	base.mu.Lock()
	defer base.mu.Unlock()
	return append([]LogEntry(nil), base.logs...)
}

// Count returns how many entries have exactly the given level and message.
func (m *MockLogger) Count(level, msg string) int {
	n := 0
	for _, entry := range m.Entries() {
		if entry.Level == level && entry.Msg == msg {
			n++
		}
	}
	return n
}

// CountMatching returns how many entries match the given message pattern.
func (m *MockLogger) CountMatching(pattern string) int {
	re := regexp.MustCompile(pattern)
	n := 0
	for _, entry := range m.Entries() {
		if re.MatchString(entry.Msg) {
			n++
		}
	}
	return n
}

// Has reports whether an entry with the given message was logged at any level.
func (m *MockLogger) Has(msg string) bool {
	for _, entry := range m.Entries() {
		if entry.Msg == msg {
			return true
		}
	}
	return false
}

func (m *MockLogger) base() *MockLogger {
	if m.root != nil {
		return m.root
	}
	return m
}

func (m *MockLogger) record(level, msg string, args []any) {
	all := append(append([]any{}, m.fields...), args...)
	base := m.base()
	base.mu.Lock()
	defer base.mu.Unlock()
	base.logs = append(base.logs, LogEntry{Level: level, Msg: msg, Fields: argsToMap(all)})
}

func argsToMap(args []any) map[string]interface{} {
	fields := make(map[string]interface{})
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return fields
}
