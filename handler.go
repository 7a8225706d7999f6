package postmortem

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// dumpHandler is to capture the Handle method of a slog.Handler and dump the
// stack for records at warn level or higher.
type dumpHandler struct {
	slog.Handler
	dumper *Dumper
}

// NewHandler returns a handler that passes records to next and, when the
// dumper has DumpLocals set, dumps the stack for each record at warn level
// or higher. The report of the dump is logged at the level of the record.
// Log with a context from Enter to see the locals of its scopes.
// If d is nil, Default is used at the time of each record.
func NewHandler(next slog.Handler, d *Dumper) slog.Handler {
	return dumpHandler{Handler: next, dumper: d}
}

func (h dumpHandler) Handle(ctx context.Context, rec slog.Record) error {
	err := h.Handler.Handle(ctx, rec)
	if rec.Level < slog.LevelWarn || isReport(ctx) {
		return err
	}
	d := h.dumper
	if d == nil {
		d = Default()
	}
	if !d.config.DumpLocals {
		return err
	}
	path, dumpErr := d.Dump(ctx)
	if dumpErr != nil {
		return errors.Join(err, dumpErr)
	}
	reported := slog.NewRecord(time.Now(), rec.Level, dumpMessage(path), rec.PC)
	reported.AddAttrs(slog.String(PathKey, path))
	return errors.Join(err, h.Handler.Handle(ctx, reported))
}

func (h dumpHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return dumpHandler{Handler: h.Handler.WithAttrs(attrs), dumper: h.dumper}
}

func (h dumpHandler) WithGroup(name string) slog.Handler {
	return dumpHandler{Handler: h.Handler.WithGroup(name), dumper: h.dumper}
}
