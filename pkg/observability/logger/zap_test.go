package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewZapLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		logFunc  func(Logger)
		expected bool
	}{
		{name: "debug suppressed at info", level: InfoLevel, logFunc: func(l Logger) { l.Debug("msg") }, expected: false},
		{name: "info emitted at info", level: InfoLevel, logFunc: func(l Logger) { l.Info("msg") }, expected: true},
		{name: "warn emitted at warn", level: WarnLevel, logFunc: func(l Logger) { l.Warn("msg") }, expected: true},
		{name: "info suppressed at error", level: ErrorLevel, logFunc: func(l Logger) { l.Info("msg") }, expected: false},
		{name: "unknown level falls back to info", level: "verbose", logFunc: func(l Logger) { l.Info("msg") }, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log, err := NewZapLogger(Config{Level: tt.level, Format: JSONFormat, Output: &buf})
			if err != nil {
				t.Fatalf("new logger: %v", err)
			}
			tt.logFunc(log)
			_ = log.Sync()
			if got := buf.Len() > 0; got != tt.expected {
				t.Fatalf("expected output=%v, got %q", tt.expected, buf.String())
			}
		})
	}
}

func TestZapLogger_WithContextAddsCycleID(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(Config{Level: InfoLevel, Format: JSONFormat, Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	ctx := ContextWithCycleID(context.Background(), "cycle-42")
	log.WithContext(ctx).Info("refresh done", "success", 3)
	_ = log.Sync()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v (%q)", err, buf.String())
	}
	if entry["cycle_id"] != "cycle-42" {
		t.Fatalf("expected cycle_id field, got %v", entry)
	}
	if entry["message"] != "refresh done" {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
}

func TestZapLogger_WithContextWithoutCycleID(t *testing.T) {
	log, err := NewZapLogger(DefaultConfig())
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if got := log.WithContext(context.Background()); got != Logger(log) {
		t.Fatal("expected same logger when context carries no cycle id")
	}
}

func TestZapLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(Config{Level: InfoLevel, Format: TextFormat, Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("hello", "key", "value")
	_ = log.Sync()
	if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestParseLogLevelAndFormat(t *testing.T) {
	if lvl, err := ParseLogLevel("WARNING"); err != nil || lvl != WarnLevel {
		t.Fatalf("expected warn, got %q (%v)", lvl, err)
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Fatal("expected error for invalid level")
	}
	if format, err := ParseLogFormat("console"); err != nil || format != TextFormat {
		t.Fatalf("expected text, got %q (%v)", format, err)
	}
	if _, err := ParseLogFormat("xml"); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestZapLogger_SetLevelAppliesToChildren(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(Config{Level: ErrorLevel, Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	child := log.With("component", "sweeper")

	child.Info("suppressed")
	log.SetLevel(DebugLevel)
	child.Debug("emitted")
	_ = log.Sync()

	if strings.Contains(buf.String(), "suppressed") {
		t.Fatalf("info entry written at error level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "emitted") || !strings.Contains(buf.String(), `"component":"sweeper"`) {
		t.Fatalf("expected child debug entry after SetLevel, got %q", buf.String())
	}
}
