package postmortem_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emicklei/postmortem"
)

func placeOrder(w http.ResponseWriter, r *http.Request) {
	_, scope := postmortem.Enter(r.Context())
	data, _ := io.ReadAll(r.Body)
	scope.Bind("payload", string(data))
	switch r.URL.Path {
	case "/panic":
		panic("no stock")
	case "/unavailable":
		w.WriteHeader(http.StatusServiceUnavailable)
	case "/missing":
		w.WriteHeader(http.StatusNotFound)
	default:
		io.WriteString(w, "ok")
	}
}

func serve(h http.Handler, rec *recording, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("qty=2"))
	req = req.WithContext(postmortem.ContextWithLogger(req.Context(), slog.New(rec)))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHTTPHandlerPanic(t *testing.T) {
	d := newDumper(t, postmortem.Config{Package: testPackage})
	rec := new(recording)
	resp := serve(postmortem.NewHTTPHandler(http.HandlerFunc(placeOrder)).WithDumper(d), rec, "/panic")
	if got, want := resp.Code, http.StatusInternalServerError; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	dump := readDump(t, d.Config().DumpPath)
	if want := "in " + testPackage + ".placeOrder:\n  payload <string> = payload = \"qty=2\"\n"; !strings.Contains(dump, want) {
		t.Errorf("missing %q in\n%s", want, dump)
	}
	if want := "Exception:\n  string: no stock\n  args: []interface {}{\"no stock\"}\n"; !strings.HasSuffix(dump, want) {
		t.Errorf("missing %q at end of\n%s", want, dump)
	}
	records := rec.all()
	if got, want := len(records), 1; got != want {
		t.Fatalf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if got, want := records[0].Level, postmortem.LevelFatal; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if payload, _ := attrOf(records[0], "payload"); payload.String() != "qty=2" {
		t.Errorf("got [%v] want [qty=2]", payload)
	}
}

func TestHTTPHandlerPanicWithoutRecovery(t *testing.T) {
	d := newDumper(t, postmortem.Config{Package: testPackage})
	h := postmortem.NewHTTPHandler(http.HandlerFunc(placeOrder)).WithDumper(d).WithPanicRecovery(false)
	defer func() {
		if got, want := recover(), any("no stock"); got != want {
			t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
		}
	}()
	serve(h, new(recording), "/panic")
}

func TestHTTPHandlerDumpErrorWithoutRecovery(t *testing.T) {
	d := newDumper(t, postmortem.Config{DumpPath: filepath.Join(t.TempDir(), "missing", "dump.txt")})
	h := postmortem.NewHTTPHandler(http.HandlerFunc(placeOrder)).WithDumper(d).WithPanicRecovery(false)
	defer func() {
		dumpErr, ok := recover().(*postmortem.DumpError)
		if !ok {
			t.Fatal("expected *postmortem.DumpError")
		}
		if got, want := dumpErr.Failure, any("no stock"); got != want {
			t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
		}
	}()
	serve(h, new(recording), "/panic")
}

func TestHTTPHandlerFailedStatus(t *testing.T) {
	d := newDumper(t, postmortem.Config{Package: testPackage})
	rec := new(recording)
	h := postmortem.NewHTTPHandler(http.HandlerFunc(placeOrder)).WithDumper(d).
		WithHeaderFilter(func(in http.Header) http.Header {
			in.Del("Authorization")
			return in
		})
	resp := serve(h, rec, "/unavailable")
	if got, want := resp.Code, http.StatusServiceUnavailable; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	dump := readDump(t, d.Config().DumpPath)
	if want := "in " + testPackage + ".placeOrder:\n  payload <string> = payload = \"qty=2\""; !strings.Contains(dump, want) {
		t.Errorf("missing %q in\n%s", want, dump)
	}
	records := rec.all()
	if got, want := len(records), 1; got != want {
		t.Fatalf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if got, want := records[0].Level, slog.LevelError; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
	if status, _ := attrOf(records[0], "status"); status.Int64() != http.StatusServiceUnavailable {
		t.Errorf("got [%v] want [%v]", status, http.StatusServiceUnavailable)
	}
}

func TestHTTPHandlerClientErrorsAreNotDumped(t *testing.T) {
	d := newDumper(t, postmortem.Config{Package: testPackage})
	rec := new(recording)
	serve(postmortem.NewHTTPHandler(http.HandlerFunc(placeOrder)).WithDumper(d), rec, "/missing")
	serve(postmortem.NewHTTPHandler(http.HandlerFunc(placeOrder)).WithDumper(d), rec, "/")
	if _, err := os.Stat(d.Config().DumpPath); !os.IsNotExist(err) {
		t.Errorf("expected no dump, got %v", err)
	}
	if got, want := len(rec.all()), 0; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
}

func TestHTTPHandlerStatusCodeFilter(t *testing.T) {
	d := newDumper(t, postmortem.Config{Package: testPackage})
	rec := new(recording)
	h := postmortem.NewHTTPHandler(http.HandlerFunc(placeOrder)).WithDumper(d).
		WithStatusCodeFilter(func(code int) bool { return code == http.StatusNotFound })
	serve(h, rec, "/missing")
	serve(h, rec, "/unavailable")
	if got, want := len(rec.all()), 1; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
}
