package httpclient

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tombee/rulegen/internal/tracing"
)

// loggingTransport decorates outbound requests with identity headers and
// logs each round trip with a sanitized URL.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

func newLoggingTransport(base http.RoundTripper, userAgent string, headers map[string]string) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{base: base, userAgent: userAgent, headers: headers}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	tracing.InjectIntoRequest(ctx, req)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)
	attrs := []any{
		"method", req.Method,
		"url", sanitizeURL(req.URL),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if id := tracing.FromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id.String())
	}

	if err != nil {
		slog.WarnContext(ctx, "http request failed", append(attrs, "error", err.Error())...)
		return nil, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "http request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
