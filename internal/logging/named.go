package logging

import (
	"context"
	"log/slog"
	"sync"
)

// Names of loggers.
const (
	RootName            = "root"
	HTTPClientLogger    = "http.client"
	HTTPTransportLogger = "http.transport"
)

// NameKey is the attribute key carrying a logger name.
const NameKey = "logger"

// Root is the level of the stream handlers.
var Root = new(slog.LevelVar)

func init() {
	Root.Set(slog.LevelWarn)
}

// VerbosityLevel maps a verbosity count to a level: 0 warn, 1 info, 2 and up debug.
func VerbosityLevel(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity == 1:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

var (
	levelsMu sync.Mutex
	levels   = map[string]*slog.LevelVar{}
)

// Level returns the level of the named logger; it is info until set.
func Level(name string) *slog.LevelVar {
	levelsMu.Lock()
	defer levelsMu.Unlock()
	lv, ok := levels[name]
	if !ok {
		lv = new(slog.LevelVar)
		levels[name] = lv
	}
	return lv
}

// SetLevel sets the level of the named logger.
func SetLevel(name string, level slog.Level) {
	Level(name).Set(level)
}

// Named returns a logger that uses its own level and writes to the
// handler of slog.Default at the time of each call.
func Named(name string) *slog.Logger {
	return slog.New(&namedHandler{name: name, level: Level(name)})
}

type namedHandler struct {
	name  string
	level *slog.LevelVar
	with  []func(slog.Handler) slog.Handler
}

func (h *namedHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *namedHandler) Handle(ctx context.Context, r slog.Record) error {
	next := slog.Default().Handler().WithAttrs([]slog.Attr{slog.String(NameKey, h.name)})
	for _, each := range h.with {
		next = each(next)
	}
	return next.Handle(ctx, r)
}

func (h *namedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.extend(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *namedHandler) WithGroup(name string) slog.Handler {
	return h.extend(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *namedHandler) extend(f func(slog.Handler) slog.Handler) slog.Handler {
	c := *h
	c.with = append(h.with[:len(h.with):len(h.with)], f)
	return &c
}
