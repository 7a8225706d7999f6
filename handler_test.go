package postmortem_test

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/emicklei/postmortem"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHandlerDumpsOnWarn(t *testing.T) {
	d := newDumper(t, postmortem.Config{Package: testPackage, DumpLocals: true})
	rec := new(recording)
	logger := slog.New(postmortem.NewHandler(rec, d))

	ctx, scope := postmortem.Enter(context.Background())
	scope.Bind("free", 3)
	logger.InfoContext(ctx, "fine")
	if _, err := os.Stat(d.Config().DumpPath); !os.IsNotExist(err) {
		t.Fatalf("expected no dump for info, got %v", err)
	}
	logger.WarnContext(ctx, "disk low")

	records := rec.all()
	if got, want := len(records), 3; got != want {
		t.Fatalf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	reported := records[2]
	if got, want := reported.Level, slog.LevelWarn; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if want := `Dumped stack and locals to "` + d.Config().DumpPath + `"`; !strings.HasPrefix(reported.Message, want) {
		t.Errorf("got [%v] want prefix [%v]", reported.Message, want)
	}
	dump := readDump(t, d.Config().DumpPath)
	if want := "in " + testPackage + ".TestHandlerDumpsOnWarn:\n  free <int> = free = 3\n"; !strings.Contains(dump, want) {
		t.Errorf("missing %q in\n%s", want, dump)
	}
	if strings.Contains(dump, "Exception:") {
		t.Errorf("unexpected exception in\n%s", dump)
	}
}

func TestHandlerWithoutDumpLocals(t *testing.T) {
	d := newDumper(t, postmortem.Config{})
	rec := new(recording)
	slog.New(postmortem.NewHandler(rec, d)).Error("failed")
	if got, want := len(rec.all()), 1; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if _, err := os.Stat(d.Config().DumpPath); !os.IsNotExist(err) {
		t.Errorf("expected no dump, got %v", err)
	}
}

func TestHandlerKeepsAttrsAndGroups(t *testing.T) {
	d := newDumper(t, postmortem.Config{Package: testPackage, DumpLocals: true})
	rec := new(recording)
	logger := slog.New(postmortem.NewHandler(rec, d)).With("node", 1).WithGroup("disk")
	logger.Warn("low")
	if got, want := len(rec.all()), 2; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
}

func TestCoreDumpsOnWarn(t *testing.T) {
	d := newDumper(t, postmortem.Config{Package: testPackage, DumpLocals: true})
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(postmortem.NewCore(core, d))

	ctx, scope := postmortem.Enter(context.Background())
	scope.Bind("shard", "eu-1")
	logger.Info("balanced", postmortem.ContextField(ctx))
	logger.With(postmortem.ContextField(ctx)).Warn("slow shard", zap.Int("ms", 300))

	entries := logs.All()
	if got, want := len(entries), 3; got != want {
		t.Fatalf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if _, ok := entries[1].ContextMap()["postmortem.scope"]; ok {
		t.Error("scope field passed to the wrapped core")
	}
	if got, want := entries[1].ContextMap()["ms"], any(int64(300)); got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	reported := entries[2]
	if got, want := reported.Level, zapcore.WarnLevel; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if got, want := reported.ContextMap()[postmortem.PathKey], any(d.Config().DumpPath); got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	dump := readDump(t, d.Config().DumpPath)
	if want := "in " + testPackage + ".TestCoreDumpsOnWarn:\n  shard <string> = shard = \"eu-1\"\n"; !strings.Contains(dump, want) {
		t.Errorf("missing %q in\n%s", want, dump)
	}
}
