package slogx

import (
	"log/slog"
	"net/http"
	"time"
)

// Transport wraps an http.RoundTripper and logs every outgoing request with
// its request ID, outcome and duration. Used as the HTTP client transport so
// each retry attempt is visible in the logs individually.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = FromContext(req.Context())
	}
	if reqID := req.Header.Get("X-Request-ID"); reqID != "" {
		logger = logger.With("req_id", reqID)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		logger.Debug("http_request",
			"method", req.Method,
			"path", req.URL.Path,
			"duration_ms", duration,
			"error", err,
		)
		return resp, err
	}

	logger.Debug("http_request",
		"method", req.Method,
		"path", req.URL.Path,
		"duration_ms", duration,
		"status", resp.StatusCode,
	)
	return resp, nil
}
