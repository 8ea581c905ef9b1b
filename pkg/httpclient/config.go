package httpclient

import (
	"fmt"
	"net/http"
	"time"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

// Config configures an outbound HTTP client.
type Config struct {
	// Timeout bounds the whole request including retries. Must be > 0.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first try (0 = none).
	RetryAttempts int

	// RetryBackoff is the delay before the first retry.
	RetryBackoff time.Duration

	// MaxBackoff caps both computed backoff and server Retry-After hints.
	MaxBackoff time.Duration

	// UserAgent is sent when the request does not set its own.
	UserAgent string

	// Headers are set on every request that does not already carry them.
	Headers map[string]string

	// RetryNonIdempotent allows retrying POST/PUT/PATCH/DELETE when the
	// request body can be replayed.
	RetryNonIdempotent bool

	// Transport overrides the base transport. Nil uses a pooled TLS 1.2+ transport.
	Transport http.RoundTripper
}

// DefaultConfig returns the defaults used for upstream calls.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 2,
		RetryBackoff:  200 * time.Millisecond,
		MaxBackoff:    5 * time.Second,
		UserAgent:     "rulegen/1.0",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return &pkgerrors.ConfigError{Key: "http.timeout", Reason: fmt.Sprintf("must be > 0, got %v", c.Timeout)}
	}
	if c.RetryAttempts < 0 {
		return &pkgerrors.ConfigError{Key: "http.retry_attempts", Reason: fmt.Sprintf("must be >= 0, got %d", c.RetryAttempts)}
	}
	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return &pkgerrors.ConfigError{Key: "http.retry_backoff", Reason: "must be > 0 when retries are enabled"}
		}
		if c.MaxBackoff < c.RetryBackoff {
			return &pkgerrors.ConfigError{
				Key:    "http.max_backoff",
				Reason: fmt.Sprintf("%v is below retry_backoff %v", c.MaxBackoff, c.RetryBackoff),
			}
		}
	}
	if c.UserAgent == "" {
		return &pkgerrors.ConfigError{Key: "http.user_agent", Reason: "must be non-empty"}
	}
	return nil
}
