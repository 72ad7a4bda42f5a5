package segvec

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with segvec-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogGrow logs the allocation of a new segment.
// Individual pushes are never logged; growth is the only allocation event.
func (l *Logger) LogGrow(segment, capacity int) {
	l.Debug("segment allocated",
		"segment", segment,
		"capacity", capacity,
	)
}

// LogSnapshotSave logs a snapshot save operation.
func (l *Logger) LogSnapshotSave(ctx context.Context, dest string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot save failed",
			"dest", dest,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"dest", dest,
			"bytes", bytes,
		)
	}
}

// LogSnapshotLoad logs a snapshot load operation.
func (l *Logger) LogSnapshotLoad(ctx context.Context, src string, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot load failed",
			"src", src,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot loaded",
			"src", src,
			"count", count,
		)
	}
}
