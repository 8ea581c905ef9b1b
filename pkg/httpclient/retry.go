package httpclient

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

// retryTransport retries transient failures with exponential backoff.
type retryTransport struct {
	base               http.RoundTripper
	maxAttempts        int
	baseBackoff        time.Duration
	maxBackoff         time.Duration
	retryNonIdempotent bool
}

func newRetryTransport(base http.RoundTripper, cfg Config) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{
		base:               base,
		maxAttempts:        cfg.RetryAttempts + 1,
		baseBackoff:        cfg.RetryBackoff,
		maxBackoff:         cfg.MaxBackoff,
		retryNonIdempotent: cfg.RetryNonIdempotent,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.canRetry(req) {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	var (
		resp *http.Response
		err  error
	)
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := t.backoff(attempt - 1)
			if resp != nil {
				if hint := retryAfter(resp); hint > 0 {
					delay = min(hint, t.maxBackoff)
				}
				drain(resp)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if req, err = rewind(req); err != nil {
				return nil, err
			}
		}

		resp, err = t.base.RoundTrip(req)
		if err != nil {
			if !isTransient(err) || attempt == t.maxAttempts {
				return nil, err
			}
			resp = nil
			continue
		}
		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
	}
	// Out of attempts: hand back the last retryable response for the caller
	// to interpret.
	return resp, err
}

func (t *retryTransport) canRetry(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return t.retryNonIdempotent && (req.Body == nil || req.GetBody != nil)
}

// backoff returns base * 2^(n-1), capped, plus up to 20% jitter.
func (t *retryTransport) backoff(n int) time.Duration {
	d := float64(t.baseBackoff) * math.Pow(2, float64(n-1))
	if d > float64(t.maxBackoff) {
		d = float64(t.maxBackoff)
	}
	return time.Duration(d + rand.Float64()*d*0.2)
}

func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		(code >= 500 && code < 600)
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsTemporary
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
