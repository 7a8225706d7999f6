// Package logging provides the stream output and named logger levels used by
// postmortem.Configure.
package logging

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimeLayout is the timestamp layout of stream lines.
const TimeLayout = "2006-01-02 15:04:05.0000"

// LevelFatal is the level of dump reports for failures escaping a guard.
const LevelFatal = slog.Level(12)

var bold = color.New(color.Bold).SprintFunc()

// NewStreamHandler returns a handler writing one line per record to w:
//
//	[ 2006-01-02 15:04:05.0000  WARNING  root ]  message  {"key": "value"}
func NewStreamHandler(w io.Writer, level slog.Leveler) slog.Handler {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(w), zapcore.DebugLevel)
	return &streamHandler{core: core, level: level, name: RootName}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:    "time",
		LevelKey:   "level",
		NameKey:    NameKey,
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[ " + t.Format(TimeLayout))
		},
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(bold(levelName(l)))
		},
		EncodeName: func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(name + " ]")
		},
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: "  ",
	}
}

func levelName(l zapcore.Level) string {
	if l == zapcore.WarnLevel {
		return "WARNING"
	}
	return l.CapitalString()
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l >= LevelFatal:
		return zapcore.FatalLevel
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	case l >= slog.LevelInfo:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

// streamHandler adapts slog records to a zap core.
type streamHandler struct {
	core   zapcore.Core
	level  slog.Leveler
	name   string
	prefix string
}

func (h *streamHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *streamHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]zapcore.Field, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, h.prefix, a)
		return true
	})
	entry := zapcore.Entry{
		Level:      zapLevel(r.Level),
		Time:       r.Time,
		LoggerName: h.name,
		Message:    r.Message,
	}
	return h.core.Write(entry, fields)
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	var fields []zapcore.Field
	for _, a := range attrs {
		if a.Key == NameKey && h.prefix == "" {
			c.name = a.Value.String()
			continue
		}
		fields = appendAttr(fields, h.prefix, a)
	}
	if len(fields) > 0 {
		c.core = h.core.With(fields)
	}
	return &c
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func appendAttr(fields []zapcore.Field, prefix string, a slog.Attr) []zapcore.Field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, each := range a.Value.Group() {
			fields = appendAttr(fields, prefix, each)
		}
		return fields
	}
	return append(fields, zap.Any(prefix+a.Key, a.Value.Any()))
}
