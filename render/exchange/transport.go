package exchange

import (
	"net/http"
	"time"

	"github.com/emicklei/postmortem/internal/logging"
)

// Transport is an http.RoundTripper that logs each round trip.
// Requests and responses go to the "http.client" logger at debug level,
// failed round trips to the "http.transport" logger at info level.
type Transport struct {
	// Base is used to perform the round trip; http.DefaultTransport if nil.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	ctx := req.Context()
	client := logging.Named(logging.HTTPClientLogger)
	client.DebugContext(ctx, "sending request", "method", req.Method, "url", req.URL.String())
	start := time.Now()
	resp, err := base.RoundTrip(req)
	if err != nil {
		logging.Named(logging.HTTPTransportLogger).InfoContext(ctx, "round trip failed",
			"method", req.Method, "url", req.URL.String(), "err", err)
		return nil, err
	}
	client.DebugContext(ctx, "received response",
		"method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}
