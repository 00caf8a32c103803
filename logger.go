package cagra

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with index-specific context.
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

// LogPlan logs a plan resolution.
func (l *Logger) LogPlan(ctx context.Context, p *Plan, err error) {
	if err != nil {
		l.ErrorContext(ctx, "plan resolution failed",
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "plan resolved",
		"algo", p.Algo.String(),
		"itopk", p.ITopKSize,
		"search_width", p.SearchWidth,
		"max_iterations", p.MaxIterations,
		"hashmap_mode", p.HashmapMode.String(),
		"hashmap_bitlen", p.HashBitLen,
		"groups_per_query", p.NumGroupsPerQuery,
	)
}

// LogSearch logs a search batch.
func (l *Logger) LogSearch(ctx context.Context, queries, k int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"queries", queries,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"queries", queries,
			"k", k,
		)
	}
}

// LogSnapshot logs a snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, filename string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"filename", filename,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"filename", filename,
		)
	}
}
