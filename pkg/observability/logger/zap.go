package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is the minimum severity written by the logger.
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// LogFormat selects the encoder.
type LogFormat string

const (
	// JSONFormat writes one JSON object per entry
	JSONFormat LogFormat = "json"
	// TextFormat writes console-style lines for local runs
	TextFormat LogFormat = "text"
)

var zapLevels = map[LogLevel]zapcore.Level{
	DebugLevel: zapcore.DebugLevel,
	InfoLevel:  zapcore.InfoLevel,
	WarnLevel:  zapcore.WarnLevel,
	ErrorLevel: zapcore.ErrorLevel,
}

// Config configures NewZapLogger.
type Config struct {
	Level  LogLevel
	Format LogFormat
	// Output defaults to os.Stdout.
	Output io.Writer
}

// DefaultConfig logs JSON at info level to stdout.
func DefaultConfig() Config {
	return Config{Level: InfoLevel, Format: JSONFormat}
}

// ZapLogger implements Logger on top of a zap SugaredLogger. Children created
// by With share the parent's level, so SetLevel affects the whole tree.
type ZapLogger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewZapLogger builds a ZapLogger. Unknown levels fall back to info and any
// format other than text is written as JSON.
func NewZapLogger(cfg Config) (*ZapLogger, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if l, ok := zapLevels[cfg.Level]; ok {
		level.SetLevel(l)
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(out), level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &ZapLogger{base: base, sugar: base.Sugar(), level: level}, nil
}

func newEncoder(format LogFormat) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	if format == TextFormat {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

func (l *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{base: l.base, sugar: l.sugar.With(args...), level: l.level}
}

// WithContext tags subsequent entries with the cycle id carried by ctx, if any.
func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	if cycleID := CycleIDFromContext(ctx); cycleID != "" {
		return l.With("cycle_id", cycleID)
	}
	return l
}

// SetLevel changes the minimum level of this logger and every child.
func (l *ZapLogger) SetLevel(level LogLevel) {
	if zl, ok := zapLevels[level]; ok {
		l.level.SetLevel(zl)
	}
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

// ParseLogLevel accepts debug, info, warn (or warning) and error, case-insensitively.
func ParseLogLevel(level string) (LogLevel, error) {
	normalized := LogLevel(strings.ToLower(strings.TrimSpace(level)))
	if normalized == "warning" {
		normalized = WarnLevel
	}
	if _, ok := zapLevels[normalized]; !ok {
		return "", fmt.Errorf("invalid log level: %s", level)
	}
	return normalized, nil
}

// ParseLogFormat accepts json, text or console.
func ParseLogFormat(format string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return JSONFormat, nil
	case "text", "console":
		return TextFormat, nil
	default:
		return "", fmt.Errorf("invalid log format: %s", format)
	}
}
