package postmortem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Dumper writes stack and locals dumps. A Dumper is immutable and safe for
// concurrent use.
type Dumper struct {
	config Config
}

var defaultDumper atomic.Pointer[Dumper]

// Default returns the dumper stored by Configure, or one with a zero Config
// if Configure was not called.
func Default() *Dumper {
	if d := defaultDumper.Load(); d != nil {
		return d
	}
	return &Dumper{}
}

// NewDumper returns a dumper for cfg. A non-empty DumpPath is resolved to an absolute path.
func NewDumper(cfg Config) (*Dumper, error) {
	if cfg.DumpPath != "" {
		resolved, err := ResolvePath(cfg.DumpPath)
		if err != nil {
			return nil, err
		}
		cfg.DumpPath = resolved
	}
	return &Dumper{config: cfg}, nil
}

// Config returns the configuration of the dumper, with DumpPath resolved.
func (d *Dumper) Config() Config { return d.config }

// WithDumpPath returns a copy of the dumper that writes to path.
func (d *Dumper) WithDumpPath(path string) (*Dumper, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}
	c := *d
	c.config.DumpPath = resolved
	return &c, nil
}

// Dump writes the stack of the calling goroutine, with the locals of the
// scopes in ctx, and returns the path of the file written.
func (d *Dumper) Dump(ctx context.Context) (string, error) {
	return d.dump(liveStack(scopeFromContext(ctx)), nil)
}

func (d *Dumper) dump(frames []Frame, failure any) (string, error) {
	return d.write(Dumps(frames, failure, d.config.Package) + "\n")
}

// appends serializes writes to configured dump paths within the process.
var appends sync.Mutex

func (d *Dumper) write(text string) (string, error) {
	if d.config.DumpPath == "" {
		return writeTemp(tempPattern(d.config.Package), text)
	}
	appends.Lock()
	defer appends.Unlock()
	f, err := os.OpenFile(d.config.DumpPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return "", err
	}
	return d.config.DumpPath, f.Close()
}

func writeTemp(pattern, text string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return filepath.Abs(f.Name())
}

// tempPattern returns the os.CreateTemp pattern for dumps of pkg.
func tempPattern(pkg string) string {
	if pkg == "" {
		return "stack_and_locals*"
	}
	safe := strings.NewReplacer("/", "-", string(os.PathSeparator), "-", ":", "-").Replace(pkg)
	return safe + "_stack_and_locals*"
}
