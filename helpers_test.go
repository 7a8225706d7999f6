package postmortem_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/emicklei/postmortem"
	"github.com/fatih/color"
)

// testPackage is the import path of the functions in this file.
const testPackage = "github.com/emicklei/postmortem_test"

func init() {
	color.NoColor = true
}

type recording struct {
	mu      sync.Mutex
	records []slog.Record
	level   slog.Level // info
}

func (r *recording) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= r.level
}
func (r *recording) Handle(ctx context.Context, record slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}
func (r *recording) WithAttrs(attrs []slog.Attr) slog.Handler {
	return r
}
func (r *recording) WithGroup(group string) slog.Handler {
	return r
}

func (r *recording) all() []slog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]slog.Record(nil), r.records...)
}

func attrOf(record slog.Record, key string) (value slog.Value, found bool) {
	record.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			value, found = a.Value, true
			return false
		}
		return true
	})
	return
}

func newDumper(t *testing.T, cfg postmortem.Config) *postmortem.Dumper {
	t.Helper()
	if cfg.DumpPath == "" {
		cfg.DumpPath = filepath.Join(t.TempDir(), "dump.txt")
	}
	d, err := postmortem.NewDumper(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func readDump(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func loggingTo(rec *recording) context.Context {
	return postmortem.ContextWithLogger(context.Background(), slog.New(rec))
}
