package postmortem

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	loggerKey contextKey = iota
	scopeKey
	trailKey
)

// ContextWithLogger returns a new context with the logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the logger from the context or the default logger if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

func scopeFromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey).(*Scope)
	return s
}

func trailFromContext(ctx context.Context) *trail {
	t, _ := ctx.Value(trailKey).(*trail)
	return t
}
