package postmortem

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/emicklei/postmortem/internal/logging"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the process wide dump settings.
type Config struct {
	// Package limits dumps to frames of this import path and the packages below it.
	// Empty means all frames.
	Package string
	// Verbosity sets the stream log level: 0 warn, 1 info, 2 and up debug.
	Verbosity int
	// DumpLocals makes log records at warn level or higher dump the stack.
	DumpLocals bool
	// DumpPath is the file dumps are appended to. Empty means a new temporary file per dump.
	DumpPath string
	// KeepHandlers keeps the stream handlers installed by earlier calls to Configure.
	KeepHandlers bool
	// Output receives the log stream; os.Stderr if nil.
	Output io.Writer
}

// Configuration keys read by LoadConfig.
const (
	KeyPackage      = "package"
	KeyVerbosity    = "verbosity"
	KeyDumpLocals   = "dump-locals"
	KeyDumpPath     = "dump-path"
	KeyKeepHandlers = "keep-handlers"
)

// EnvPrefix is the prefix of environment variables read by NewViper,
// such as POSTMORTEM_DUMP_PATH.
const EnvPrefix = "POSTMORTEM"

// ErrUnsupportedPath is returned for dump paths that cannot be resolved.
var ErrUnsupportedPath = errors.New("unsupported dump path")

// ResolvePath expands a leading "~" and makes path absolute.
func ResolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.Wrap(ErrUnsupportedPath, "empty path")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", errors.Wrapf(ErrUnsupportedPath, "%s: %v", path, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", errors.Wrapf(ErrUnsupportedPath, "%s: %v", path, err)
	}
	return abs, nil
}

// Configure sets up logging for the process and returns the dumper that is
// also stored as Default.
//
// It installs a stream handler on cfg.Output at the level for cfg.Verbosity,
// wrapped by NewHandler, as the default slog handler. Stream handlers of
// earlier calls are dropped unless cfg.KeepHandlers is set.
func Configure(cfg Config) (*Dumper, error) {
	d, err := NewDumper(cfg)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	logging.Root.Set(logging.VerbosityLevel(cfg.Verbosity))
	stream := logging.Install(logging.NewStreamHandler(out, logging.Root), cfg.KeepHandlers)
	slog.SetDefault(slog.New(NewHandler(stream, d)))

	httpLevel := slog.LevelInfo
	if cfg.Verbosity > 1 {
		httpLevel = slog.LevelDebug
	}
	logging.SetLevel(logging.HTTPClientLogger, httpLevel)
	logging.SetLevel(logging.HTTPTransportLogger, httpLevel)

	defaultDumper.Store(d)
	return d, nil
}

// NewViper returns a viper instance reading POSTMORTEM_* environment
// variables, with "-" in keys mapped to "_".
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault(KeyVerbosity, 0)
	v.SetDefault(KeyDumpLocals, false)
	v.SetDefault(KeyKeepHandlers, false)
	return v
}

// LoadConfig reads a Config from v.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Package:      v.GetString(KeyPackage),
		Verbosity:    v.GetInt(KeyVerbosity),
		DumpLocals:   v.GetBool(KeyDumpLocals),
		DumpPath:     v.GetString(KeyDumpPath),
		KeepHandlers: v.GetBool(KeyKeepHandlers),
	}
	if cfg.Verbosity < 0 {
		return Config{}, errors.Errorf("%s must not be negative: %d", KeyVerbosity, cfg.Verbosity)
	}
	if cfg.DumpPath != "" {
		resolved, err := ResolvePath(cfg.DumpPath)
		if err != nil {
			return Config{}, err
		}
		cfg.DumpPath = resolved
	}
	return cfg, nil
}
