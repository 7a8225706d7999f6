package postmortem

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const scopeFieldKey = "postmortem.scope"

// ContextField returns a field carrying the scopes of ctx to a core made by NewCore.
// Other cores ignore it.
//
//	logger.Warn("disk low", postmortem.ContextField(ctx))
func ContextField(ctx context.Context) zap.Field {
	return zap.Field{Key: scopeFieldKey, Type: zapcore.SkipType, Interface: scopeFromContext(ctx)}
}

// NewCore wraps core so that, when the dumper has DumpLocals set, each entry
// at warn level or higher dumps the stack. The report is written to core at
// the level of the entry. If d is nil, Default is used at the time of each entry.
func NewCore(core zapcore.Core, d *Dumper) zapcore.Core {
	return &dumpCore{Core: core, dumper: d}
}

type dumpCore struct {
	zapcore.Core
	dumper *Dumper
	scope  *Scope
}

func (c *dumpCore) With(fields []zapcore.Field) zapcore.Core {
	scope, rest := splitScope(fields, c.scope)
	return &dumpCore{Core: c.Core.With(rest), dumper: c.dumper, scope: scope}
}

func (c *dumpCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *dumpCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	scope, rest := splitScope(fields, c.scope)
	err := c.Core.Write(ent, rest)
	if ent.Level < zapcore.WarnLevel {
		return err
	}
	d := c.dumper
	if d == nil {
		d = Default()
	}
	if !d.config.DumpLocals {
		return err
	}
	path, dumpErr := d.dump(liveStack(scope), nil)
	if dumpErr != nil {
		return multierr.Append(err, dumpErr)
	}
	reported := zapcore.Entry{
		Level:      ent.Level,
		Time:       time.Now(),
		LoggerName: ent.LoggerName,
		Message:    dumpMessage(path),
	}
	return multierr.Append(err, c.Core.Write(reported, []zapcore.Field{zap.String(PathKey, path)}))
}

// splitScope takes the newest scope carried by fields, or current if there is none.
func splitScope(fields []zapcore.Field, current *Scope) (*Scope, []zapcore.Field) {
	rest := fields[:0:0]
	for _, each := range fields {
		if each.Key == scopeFieldKey && each.Type == zapcore.SkipType {
			if s, ok := each.Interface.(*Scope); ok && s != nil {
				current = s
			}
			continue
		}
		rest = append(rest, each)
	}
	return current, rest
}
