// Package exchange registers renderings for network exchange values:
// net/http requests and responses, response recorders, transport errors,
// websocket connections and gRPC statuses.
//
// Import it for its side effect, before anything is rendered:
//
//	import _ "github.com/emicklei/postmortem/render/exchange"
package exchange

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/emicklei/postmortem/render"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc/status"
)

// maxHistory bounds the redirect chain that is rendered for a response.
const maxHistory = 32

func init() {
	render.Register(recognizer[*http.Request]{request})
	render.Register(recognizer[http.Request]{func(name string, r http.Request) string { return request(name, &r) }})
	render.Register(recognizer[*http.Response]{func(name string, r *http.Response) string { return response(name, r, true) }})
	render.Register(recognizer[*httptest.ResponseRecorder]{recorder})
	render.Register(recognizer[*url.Error]{transportError})
	render.Register(recognizer[*websocket.Conn]{connection})
	render.Register(recognizer[*status.Status]{grpcStatus})
	render.Register(statusCarrier{})
}

// recognizer renders values of exactly type T; nil pointers are left to the
// default rendering.
type recognizer[T any] struct {
	fn func(name string, value T) string
}

func (r recognizer[T]) Recognizes(value any) bool {
	_, ok := value.(T)
	return ok && !isNil(value)
}

func (r recognizer[T]) Render(name string, value any) string {
	return r.fn(name, value.(T))
}

func isNil(value any) bool {
	v := reflect.ValueOf(value)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// statusCarrier recognizes errors created by the grpc status package.
type statusCarrier struct{}

type grpcStatusError interface {
	GRPCStatus() *status.Status
}

func (statusCarrier) Recognizes(value any) bool {
	e, ok := value.(grpcStatusError)
	return ok && !isNil(value) && e.GRPCStatus() != nil
}

func (statusCarrier) Render(name string, value any) string {
	return grpcStatus(name, value.(grpcStatusError).GRPCStatus())
}

func request(name string, r *http.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = <http.Request [%s]>", name, r.Method)
	fmt.Fprintf(&b, "\n  %s.method = %s", name, r.Method)
	fmt.Fprintf(&b, "\n  %s.url = %s", name, urlString(r.URL))
	fmt.Fprintf(&b, "\n  %s.headers = %s", name, headers(r.Header))
	if body := requestBody(r); len(body) > 0 {
		attribute(&b, name, "body", body)
	}
	if r.URL != nil {
		if params := r.URL.Query(); len(params) > 0 {
			attribute(&b, name, "params", params)
		}
	}
	if len(r.PostForm) > 0 {
		attribute(&b, name, "data", r.PostForm)
	}
	return b.String()
}

func attribute(b *strings.Builder, name, attr string, value any) {
	fmt.Fprintf(b, "\n  %s.%s = %s", name, attr, nested(render.Render("_", value)))
}

// requestBody reads a copy of the body; the live body is never consumed.
func requestBody(r *http.Request) []byte {
	if r.GetBody == nil {
		return nil
	}
	rc, err := r.GetBody()
	if err != nil {
		return nil
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil
	}
	return data
}

func response(name string, r *http.Response, withHistory bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = <http.Response [%d]>", name, r.StatusCode)
	if r.Request != nil {
		fmt.Fprintf(&b, "\n  %s.url = %s", name, urlString(r.Request.URL))
	}
	fmt.Fprintf(&b, "\n  %s.request = %s", name, nested(render.Render("_", r.Request)))
	if history := redirects(r); withHistory && len(history) > 0 {
		fmt.Fprintf(&b, "\n  %s.history = [", name)
		for _, each := range history {
			b.WriteString("\n    ")
			b.WriteString(strings.ReplaceAll(response("_", each, false), "\n", "\n    "))
		}
		b.WriteString("\n  ]")
	}
	fmt.Fprintf(&b, "\n  %s.status_code = %d", name, r.StatusCode)
	fmt.Fprintf(&b, "\n  %s.headers = %s", name, headers(r.Header))
	fmt.Fprintf(&b, "\n  %s.content = %s", name, content(r.Body))
	return b.String()
}

// redirects returns the responses that led to r, oldest first.
func redirects(r *http.Response) (chain []*http.Response) {
	for req := r.Request; req != nil && req.Response != nil && len(chain) < maxHistory; req = req.Response.Request {
		chain = append(chain, req.Response)
	}
	slices.Reverse(chain)
	return chain
}

func recorder(name string, r *httptest.ResponseRecorder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = <httptest.ResponseRecorder [%d]>", name, r.Code)
	fmt.Fprintf(&b, "\n  %s.status_code = %d", name, r.Code)
	fmt.Fprintf(&b, "\n  %s.headers = %s", name, headers(r.HeaderMap))
	var body []byte
	if r.Body != nil {
		body = r.Body.Bytes()
	}
	fmt.Fprintf(&b, "\n  %s.content = %s", name, nested(render.Render("_", nonNil(body))))
	return b.String()
}

func transportError(name string, e *url.Error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = <url.Error [%s]>", name, e.Op)
	fmt.Fprintf(&b, "\n  %s.url = %s", name, e.URL)
	b.WriteString("\n  " + nested(render.Render(name+".err", e.Err)))
	return b.String()
}

func connection(name string, c *websocket.Conn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = <websocket.Conn [%s]>", name, c.Subprotocol())
	fmt.Fprintf(&b, "\n  %s.local = %v", name, c.LocalAddr())
	fmt.Fprintf(&b, "\n  %s.remote = %v", name, c.RemoteAddr())
	fmt.Fprintf(&b, "\n  %s.subprotocol = %q", name, c.Subprotocol())
	return b.String()
}

func grpcStatus(name string, s *status.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = <grpc.Status [%s]>", name, s.Code())
	fmt.Fprintf(&b, "\n  %s.code = %s", name, s.Code())
	fmt.Fprintf(&b, "\n  %s.message = %q", name, s.Message())
	if details := s.Details(); len(details) > 0 {
		b.WriteString("\n  " + nested(render.Render(name+".details", details)))
	}
	return b.String()
}

// headers renders a header map with sorted keys; single values are unwrapped.
func headers(h http.Header) string {
	if len(h) == 0 {
		return fmt.Sprintf("%#v", h)
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	b.WriteString("\\")
	for _, k := range keys {
		var value any = h[k]
		if len(h[k]) == 1 {
			value = h[k][0]
		}
		b.WriteString("\n    " + k + " = " + strings.ReplaceAll(render.Render("_", value), "\n", "\n    "))
	}
	return b.String()
}

type byteser interface {
	Bytes() []byte
}

// content renders a response body when it can be read without consuming it.
func content(body io.ReadCloser) string {
	switch b := body.(type) {
	case nil:
		return nested(render.Render("_", []byte{}))
	case byteser:
		return nested(render.Render("_", nonNil(b.Bytes())))
	}
	if body == http.NoBody {
		return nested(render.Render("_", []byte{}))
	}
	return fmt.Sprintf("<unread %T>", body)
}

func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}

func nested(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}
