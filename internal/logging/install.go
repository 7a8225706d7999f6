package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

var (
	installMu sync.Mutex
	installed []slog.Handler
)

// Install adds h to the installed stream handlers, dropping the previous
// ones unless keep is set, and returns a handler writing to all of them.
func Install(h slog.Handler, keep bool) slog.Handler {
	installMu.Lock()
	defer installMu.Unlock()
	if !keep {
		installed = nil
	}
	installed = append(installed, h)
	if len(installed) == 1 {
		return h
	}
	return fanout(slices.Clone(installed))
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, each := range f {
		if each.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, each := range f {
		if !each.Enabled(ctx, r.Level) {
			continue
		}
		if err := each.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, each := range f {
		next[i] = each.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, each := range f {
		next[i] = each.WithGroup(name)
	}
	return next
}
