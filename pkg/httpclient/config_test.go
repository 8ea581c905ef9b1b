package httpclient

import (
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "http.timeout"},
		{"negative retries", func(c *Config) { c.RetryAttempts = -1 }, "http.retry_attempts"},
		{"zero backoff", func(c *Config) { c.RetryBackoff = 0 }, "http.retry_backoff"},
		{"zero backoff without retries", func(c *Config) { c.RetryAttempts = 0; c.RetryBackoff = 0 }, ""},
		{"max below base", func(c *Config) { c.MaxBackoff = time.Millisecond }, "http.max_backoff"},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }, "http.user_agent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantKey == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			var cerr *pkgerrors.ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cerr.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", cerr.Key, tt.wantKey)
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 0

	client, err := New(cfg)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	if client != nil {
		t.Error("expected nil client on error")
	}
}
