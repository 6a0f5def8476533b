package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/clientdesk/pkg/idx"
)

// RequestIDHeader carries the per-request correlation id to the backend.
const RequestIDHeader = "X-Request-ID"

// Transport logs every outbound request and stamps it with a request id.
// The logger is taken from the request context when present so callers can
// attach operation attributes upstream.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	reqID := req.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, reqID)
	}

	ctx := req.Context()
	if _, ok := ctx.Value(ctxKey{}).(*slog.Logger); !ok && t.Logger != nil {
		ctx = WithContext(ctx, t.Logger)
	}
	logger := FromContext(WithRequestID(ctx, reqID)).With(
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		logger.Warn("http_request_failed",
			"duration_ms", duration,
			"error", err,
		)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
