package exchange

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/emicklei/postmortem/internal/logging"
)

type recording struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

func newRecording() recording {
	return recording{mu: new(sync.Mutex), records: new([]slog.Record)}
}

func (r recording) Enabled(context.Context, slog.Level) bool { return true }
func (r recording) Handle(_ context.Context, rec slog.Record) error {
	rec.AddAttrs(r.attrs...)
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, rec)
	return nil
}
func (r recording) WithAttrs(attrs []slog.Attr) slog.Handler {
	r.attrs = append(r.attrs[:len(r.attrs):len(r.attrs)], attrs...)
	return r
}
func (r recording) WithGroup(string) slog.Handler { return r }

func (r recording) logger(i int) string {
	var name string
	(*r.records)[i].Attrs(func(a slog.Attr) bool {
		if a.Key == logging.NameKey {
			name = a.Value.String()
		}
		return true
	})
	return name
}

func withDefault(t *testing.T, h slog.Handler) {
	previous := slog.Default()
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func TestTransportLogsRoundTrip(t *testing.T) {
	rec := newRecording()
	withDefault(t, rec)
	logging.SetLevel(logging.HTTPClientLogger, slog.LevelDebug)
	defer logging.SetLevel(logging.HTTPClientLogger, slog.LevelInfo)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	client := &http.Client{Transport: &Transport{}}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got, want := len(*rec.records), 2; got != want {
		t.Fatalf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if got, want := (*rec.records)[1].Message, "received response"; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if got, want := rec.logger(0), logging.HTTPClientLogger; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
}

func TestTransportLogsFailure(t *testing.T) {
	rec := newRecording()
	withDefault(t, rec)
	logging.SetLevel(logging.HTTPClientLogger, slog.LevelInfo)
	logging.SetLevel(logging.HTTPTransportLogger, slog.LevelInfo)

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := &http.Client{Transport: &Transport{Base: http.DefaultTransport}}
	if _, err := client.Get(url); err == nil {
		t.Fatal("expected error")
	}
	if got, want := len(*rec.records), 1; got != want {
		t.Fatalf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if got, want := (*rec.records)[0].Level, slog.LevelInfo; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if got, want := rec.logger(0), logging.HTTPTransportLogger; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
}
