// main.go builds the postmortem-demo command: each subcommand triggers one
// kind of stack and locals dump.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/emicklei/postmortem"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCommand().ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := postmortem.NewViper()
	var configFile string
	colorMode := "auto"
	cmd := &cobra.Command{
		Use:           "postmortem-demo",
		Short:         "Show stack and locals dumps for panics, errors and warnings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyColor(colorMode, cmd.ErrOrStderr()); err != nil {
				return err
			}
			if err := readConfigFile(v, configFile); err != nil {
				return err
			}
			cfg, err := postmortem.LoadConfig(v)
			if err != nil {
				return err
			}
			cfg.Output = cmd.ErrOrStderr()
			_, err = postmortem.Configure(cfg)
			return err
		},
	}
	flags := cmd.PersistentFlags()
	flags.String(postmortem.KeyPackage, "main", "Dump only frames of this package and the packages below it")
	flags.CountP(postmortem.KeyVerbosity, "v", "Increase log verbosity (-v info, -vv debug)")
	flags.Bool(postmortem.KeyDumpLocals, false, "Dump stack and locals on warnings")
	flags.String(postmortem.KeyDumpPath, "", "Append dumps to this file instead of a new temporary file")
	flags.Bool(postmortem.KeyKeepHandlers, false, "Keep log handlers of earlier configurations")
	flags.StringVar(&colorMode, "color", colorMode, "Bold report lines: auto, always or never")
	flags.StringVar(&configFile, "config", os.Getenv("POSTMORTEM_CONFIG"), "Read settings from this file")
	// flags given on the command line take precedence over POSTMORTEM_* variables and the config file
	cobra.CheckErr(v.BindPFlags(flags))

	cmd.AddCommand(newPanicCommand(), newWarnCommand(), newFetchCommand(), newServeCommand(), newConfigCommand())
	return cmd
}

func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	resolved, err := postmortem.ResolvePath(path)
	if err != nil {
		return err
	}
	v.SetConfigFile(resolved)
	return v.ReadInConfig()
}

func applyColor(mode string, w io.Writer) error {
	switch mode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	case "auto":
		f, ok := w.(*os.File)
		color.NoColor = !ok || !term.IsTerminal(int(f.Fd()))
	default:
		return fmt.Errorf("invalid --color %q: use auto, always or never", mode)
	}
	return nil
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	if errors.Is(err, postmortem.ErrUnsupportedPath) {
		message = fmt.Sprintf("%s\nHint: use an absolute path or one starting with ~/", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", strings.TrimSpace(message))
}
