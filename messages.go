package postmortem

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/emicklei/postmortem/internal/logging"
	"github.com/fatih/color"
)

// LevelFatal is the level of dump reports for failures caught by a Guard.
const LevelFatal = logging.LevelFatal

// PathKey is the attribute key of the dump path in reports.
const PathKey = "path"

var bold = color.New(color.Bold).SprintFunc()

// dumpMessage tells where a dump was written and how to view it.
func dumpMessage(path string) string {
	view := "cat '" + path + "'"
	if runtime.GOOS == "windows" {
		view = `type "` + path + `"`
	}
	return bold(`Dumped stack and locals to "`+path+`"`) +
		"\nCopy and paste the following to view:\n    " + view + "\n"
}

type reportKey struct{}

// reporting marks ctx so that the report record does not trigger another dump.
func reporting(ctx context.Context) context.Context {
	return context.WithValue(ctx, reportKey{}, true)
}

func isReport(ctx context.Context) bool {
	return ctx.Value(reportKey{}) != nil
}

func report(ctx context.Context, logger *slog.Logger, level slog.Level, path string, attrs ...any) {
	logger.Log(reporting(ctx), level, dumpMessage(path), append(attrs, PathKey, path)...)
}
