package postmortem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
)

// HTTPHandler guards the handling of each request. It dumps the stack and
// locals when the next handler panics or responds with a failed status code.
type HTTPHandler struct {
	next             http.Handler
	dumper           *Dumper
	handlePanic      bool
	bufferCapacity   int
	headerFilter     func(in http.Header) (out http.Header)
	statusCodeFilter func(statusCode int) bool
}

// NewHTTPHandler returns a handler that records the request payload and
// dumps on panics and on responses with status 500 or higher.
// The dump is reported with details about the HTTP request including the payload.
func NewHTTPHandler(next http.Handler) HTTPHandler {
	return HTTPHandler{
		next:           next,
		handlePanic:    true,
		bufferCapacity: math.MaxInt,
	}
}

// WithDumper sets the dumper used instead of Default.
func (h HTTPHandler) WithDumper(d *Dumper) HTTPHandler {
	h.dumper = d
	return h
}

// WithPanicRecovery enables or disables handling panics. Default is true.
// A recovered panic is answered with status 500; otherwise the panic continues after the dump.
func (h HTTPHandler) WithPanicRecovery(enabled bool) HTTPHandler {
	h.handlePanic = enabled
	return h
}

// WithRequestBodyCapture sets a limit to the size of the recorded request body for logging on failure.
func (h HTTPHandler) WithRequestBodyCapture(maxBytes int) HTTPHandler {
	h.bufferCapacity = maxBytes
	return h
}

// WithHeaderFilter allows you to modify the request headers before producing a log entry.
// This can be used to mask or remove sensitive information such as tokens or cookies.
func (h HTTPHandler) WithHeaderFilter(f func(in http.Header) (out http.Header)) HTTPHandler {
	h.headerFilter = f
	return h
}

// WithStatusCodeFilter replaces the decision which status codes are failures.
func (h HTTPHandler) WithStatusCodeFilter(f func(statusCode int) bool) HTTPHandler {
	h.statusCodeFilter = f
	return h
}

func (h HTTPHandler) dumperOrDefault() *Dumper {
	if h.dumper != nil {
		return h.dumper
	}
	return Default()
}

// ServeHTTP implements http.Handler
func (h HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// record request payload up to buffer capacity
	bodyReader := &limitedBodyRecorder{body: r.Body, limit: h.bufferCapacity, buffer: new(bytes.Buffer)}
	if r.Body == nil {
		bodyReader.body = http.NoBody
	}
	r.Body = bodyReader

	t := newTrail(trailFromContext(r.Context()))
	ctx := context.WithValue(r.Context(), trailKey, t)
	log := LoggerFromContext(ctx)

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		path, err := h.dumperOrDefault().dump(failureStack(callers(), t), rec)
		attrs := h.requestAttrs(r, bodyReader, http.StatusInternalServerError)
		if err != nil {
			dumpErr := &DumpError{Err: err, Failure: rec}
			log.Log(reporting(ctx), LevelFatal, "Dump failed", append(attrs, "err", dumpErr)...)
			if !h.handlePanic {
				panic(dumpErr)
			}
		} else {
			report(ctx, log, LevelFatal, path, append(attrs, "panic", fmt.Sprint(rec))...)
		}
		if !h.handlePanic {
			panic(rec)
		}
		w.WriteHeader(http.StatusInternalServerError)
	}()

	// serve the request
	responseWriter := &statusCodeRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	h.next.ServeHTTP(responseWriter, r.WithContext(ctx))

	// did it fail?
	fail := responseWriter.statusCode >= http.StatusInternalServerError
	if h.statusCodeFilter != nil {
		fail = h.statusCodeFilter(responseWriter.statusCode)
	}
	if !fail {
		return
	}
	attrs := h.requestAttrs(r, bodyReader, responseWriter.statusCode)
	path, err := h.dumperOrDefault().dump(t.synthesize(), nil)
	if err != nil {
		log.Log(reporting(ctx), slog.LevelError, "Dump failed", append(attrs, "err", err)...)
		return
	}
	report(ctx, log, slog.LevelError, path, attrs...)
}

func (h HTTPHandler) requestAttrs(r *http.Request, body *limitedBodyRecorder, status int) []any {
	return []any{
		"method", r.Method, "url", r.URL.String(), "headers", h.filteredHeaders(r.Header),
		"payload", body.recorded(), "status", status,
	}
}

func (h HTTPHandler) filteredHeaders(headers http.Header) http.Header {
	if h.headerFilter == nil {
		return headers
	}
	return h.headerFilter(headers.Clone())
}

type statusCodeRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (h *statusCodeRecorder) WriteHeader(c int) {
	h.statusCode = c
	h.ResponseWriter.WriteHeader(c)
}

// Unwrap is used by http.ResponseController.
func (h *statusCodeRecorder) Unwrap() http.ResponseWriter {
	return h.ResponseWriter
}

type limitedBodyRecorder struct {
	body      io.ReadCloser
	limit     int
	buffer    *bytes.Buffer
	bytesRead int
}

func (l *limitedBodyRecorder) Read(p []byte) (n int, err error) {
	n, err = l.body.Read(p)
	// write to buffer until hit limit
	if size := l.buffer.Len(); size < l.limit {
		max := min(n, l.limit-size)
		l.buffer.Write(p[:max])
	}
	l.bytesRead += n
	return
}

func (l *limitedBodyRecorder) Close() error {
	return l.body.Close()
}

func (l *limitedBodyRecorder) recorded() string {
	s := l.buffer.String()
	if l.buffer.Len() < l.bytesRead {
		s = fmt.Sprintf("%s..(%d of %d)", s, l.limit, l.bytesRead)
	}
	return s
}
