package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/emicklei/postmortem"
	"github.com/emicklei/postmortem/render/exchange"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type inventory struct {
	Warehouse string
	stock     map[string]int
}

func (i *inventory) take(ctx context.Context, item string, quantity int) int {
	_, scope := postmortem.Enter(ctx)
	scope.Receiver("i", i).Bind("item", item).Bind("quantity", quantity)
	left := i.stock[item] - quantity
	scope.Bind("left", left)
	if left < 0 {
		panic(fmt.Sprintf("only %d %s left", i.stock[item], item))
	}
	i.stock[item] = left
	return left
}

func newPanicCommand() *cobra.Command {
	var recoverPanic bool
	cmd := &cobra.Command{
		Use:   "panic",
		Short: "Take more from the inventory than there is",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := &inventory{Warehouse: "north", stock: map[string]int{"bolts": 3}}
			return postmortem.New(cmd.Context()).WithPanicRecovery(recoverPanic).Call(func(ctx context.Context) error {
				ctx, scope := postmortem.Enter(ctx)
				orders := []int{2, 2}
				scope.Bind("orders", orders)
				for _, each := range orders {
					inv.take(ctx, "bolts", each)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&recoverPanic, "recover", true, "Return the panic as an error instead of crashing")
	return cmd
}

func newWarnCommand() *cobra.Command {
	var useZap bool
	cmd := &cobra.Command{
		Use:   "warn",
		Short: "Log a warning; with --dump-locals it dumps the stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, scope := postmortem.Enter(cmd.Context())
			free := 42 * 1024
			scope.Bind("free", free).Bind("mounts", []string{"/", "/var"})
			if useZap {
				return warnWithZap(ctx, cmd.ErrOrStderr(), free)
			}
			slog.WarnContext(ctx, "disk space low", "free", free)
			return nil
		},
	}
	cmd.Flags().BoolVar(&useZap, "zap", false, "Log with a zap logger")
	return cmd
}

func warnWithZap(ctx context.Context, w io.Writer, free int) error {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(w), zapcore.InfoLevel)
	logger := zap.New(postmortem.NewCore(core, nil))
	defer logger.Sync()
	logger.Warn("disk space low", zap.Int("free", free), postmortem.ContextField(ctx))
	return nil
}

func newFetchCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "GET a URL and dump the exchange when the status is not 2xx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Transport: &exchange.Transport{}, Timeout: timeout}
			return postmortem.New(cmd.Context()).Call(func(ctx context.Context) error {
				return fetch(ctx, client, args[0], cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Time limit of the request")
	return cmd
}

func fetch(ctx context.Context, client *http.Client, url string, w io.Writer) error {
	_, scope := postmortem.Enter(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "fetch")
	}
	scope.Bind("req", req)
	resp, err := client.Do(req)
	if err != nil {
		scope.Bind("err", err)
		return errors.Wrap(err, "fetch")
	}
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	resp.Body = readBody{bytes.NewReader(content)}
	scope.Bind("resp", resp)
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("fetch %s: %s", url, resp.Status)
	}
	_, err = w.Write(content)
	return err
}

// readBody is a consumed response body that can still show its content.
type readBody struct {
	*bytes.Reader
}

func (b readBody) Close() error { return nil }

func (b readBody) Bytes() []byte {
	content := make([]byte, b.Size())
	b.ReadAt(content, 0)
	return content
}

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve orders; POST /orders?item=bolts with a quantity as body",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := &inventory{Warehouse: "north", stock: map[string]int{"bolts": 3, "nuts": 10}}
			var mu sync.Mutex
			mux := http.NewServeMux()
			mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				defer mu.Unlock()
				ctx, scope := postmortem.Enter(r.Context())
				var quantity int
				if _, err := fmt.Fscan(r.Body, &quantity); err != nil {
					scope.Bind("err", err)
					http.Error(w, "quantity expected", http.StatusUnprocessableEntity)
					return
				}
				left := inv.take(ctx, r.URL.Query().Get("item"), quantity)
				fmt.Fprintf(w, "%d left\n", left)
			})
			srv := &http.Server{Addr: addr, Handler: postmortem.NewHTTPHandler(mux).WithHeaderFilter(withoutCredentials)}
			go func() {
				<-cmd.Context().Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdown)
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "try: curl -d 5 'http://localhost%s/orders?item=bolts'\n", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

func withoutCredentials(in http.Header) http.Header {
	in.Del("Authorization")
	in.Del("Cookie")
	return in
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := postmortem.Default().Config()
			out, err := yaml.Marshal(settings{
				Package:      cfg.Package,
				Verbosity:    cfg.Verbosity,
				DumpLocals:   cfg.DumpLocals,
				DumpPath:     cfg.DumpPath,
				KeepHandlers: cfg.KeepHandlers,
			})
			if err != nil {
				return errors.Wrap(err, "marshal settings")
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// settings is the file form of postmortem.Config, as read with --config.
type settings struct {
	Package      string `yaml:"package"`
	Verbosity    int    `yaml:"verbosity"`
	DumpLocals   bool   `yaml:"dump-locals"`
	DumpPath     string `yaml:"dump-path,omitempty"`
	KeepHandlers bool   `yaml:"keep-handlers"`
}
