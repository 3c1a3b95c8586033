// Package logging is the structured logger every component writes to. It
// wraps log/slog with a context-first API, a per-component tag and an
// explicit error argument on Warn and Error.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents different log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	return l.slogLevel().String()
}

// ParseLevel converts a flag value such as "debug" or "WARN" into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger interface for structured logging
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// AssetLogger implements Logger on top of log/slog. Fields added with With
// are bound into the slog.Logger; the component is kept apart so that
// WithComponent replaces it instead of stacking a second one.
type AssetLogger struct {
	logger    *slog.Logger
	component string
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
	Component string
}

// NewLogger creates a logger writing to config.Output, stderr by default.
func NewLogger(config *LoggerConfig) *AssetLogger {
	if config == nil {
		config = &LoggerConfig{Level: LevelInfo}
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &AssetLogger{logger: slog.New(handler), component: config.Component}
}

// NewNopLogger returns a logger that discards everything. Handy in tests.
func NewNopLogger() *AssetLogger {
	return NewLogger(&LoggerConfig{Level: LevelError, Output: io.Discard})
}

func (l *AssetLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelDebug, nil, msg, fields)
}

func (l *AssetLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelInfo, nil, msg, fields)
}

func (l *AssetLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelWarn, err, msg, fields)
}

func (l *AssetLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelError, err, msg, fields)
}

// With returns a logger that adds fields, given as key/value pairs, to
// every record.
func (l *AssetLogger) With(fields ...interface{}) Logger {
	return &AssetLogger{logger: l.logger.With(fields...), component: l.component}
}

// WithComponent returns a logger tagging records with component.
func (l *AssetLogger) WithComponent(component string) Logger {
	return &AssetLogger{logger: l.logger, component: component}
}

func (l *AssetLogger) log(ctx context.Context, level slog.Level, err error, msg string, fields []interface{}) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}

	args := make([]interface{}, 0, len(fields)+4)
	if l.component != "" {
		args = append(args, slog.String("component", l.component))
	}
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	args = append(args, fields...)
	l.logger.Log(ctx, level, msg, args...)
}

// PerfLogger tracks how long a named operation takes.
type PerfLogger struct {
	Logger
	startTime time.Time
}

// StartOperation begins timing operation.
func StartOperation(logger Logger, operation string) *PerfLogger {
	return &PerfLogger{
		Logger:    logger.With("operation", operation),
		startTime: time.Now(),
	}
}

// End logs the elapsed time with fields at info level.
func (p *PerfLogger) End(ctx context.Context, fields ...interface{}) {
	fields = append(fields, "duration", time.Since(p.startTime).Round(time.Millisecond).String())
	p.Info(ctx, "Operation completed", fields...)
}

// EndWithError logs the elapsed time and err at error level.
func (p *PerfLogger) EndWithError(ctx context.Context, err error) {
	p.Error(ctx, err, "Operation failed",
		"duration", time.Since(p.startTime).Round(time.Millisecond).String())
}
