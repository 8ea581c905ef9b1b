package llm

import (
	"fmt"
	"strings"
	"time"
)

// Credentials is the interface that all provider credential types must implement.
type Credentials interface {
	// Validate checks if the credentials are properly formatted and present.
	Validate() error

	// Redacted returns a safe-to-log version of the credentials.
	Redacted() string

	// ProviderType returns the type of provider these credentials are for.
	ProviderType() string
}

// APIKeyCredentials holds authentication for hosted providers (Anthropic, OpenAI).
type APIKeyCredentials struct {
	// APIKey is the authentication token for the provider's API.
	APIKey string

	// BaseURL is an optional override for the API endpoint.
	BaseURL string

	// Model is the default model for requests that name none.
	Model string

	// Timeout bounds a single completion call. Zero uses the provider default.
	Timeout time.Duration
}

// Validate checks that the API key is present.
func (c APIKeyCredentials) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	return nil
}

// Redacted returns a safe-to-log version with the API key masked.
func (c APIKeyCredentials) Redacted() string {
	masked := maskSecret(c.APIKey)
	if c.BaseURL != "" {
		return fmt.Sprintf("APIKey: %s, BaseURL: %s", masked, c.BaseURL)
	}
	return fmt.Sprintf("APIKey: %s", masked)
}

// ProviderType returns "api".
func (c APIKeyCredentials) ProviderType() string {
	return "api"
}

// LocalCredentials holds configuration for self-hosted providers such as Ollama.
type LocalCredentials struct {
	// BaseURL is the API endpoint. Defaults to http://localhost:11434 if empty.
	BaseURL string

	// Model is the default model.
	Model string

	// Timeout bounds a single completion call.
	Timeout time.Duration
}

// Validate always succeeds; local providers need no secret.
func (c LocalCredentials) Validate() error {
	return nil
}

// Redacted returns a safe-to-log version of the credentials.
func (c LocalCredentials) Redacted() string {
	if c.BaseURL != "" {
		return fmt.Sprintf("BaseURL: %s", c.BaseURL)
	}
	return "BaseURL: http://localhost:11434 (default)"
}

// ProviderType returns "local".
func (c LocalCredentials) ProviderType() string {
	return "local"
}

// MaskSecret returns a masked version of a secret string.
func MaskSecret(secret string) string {
	return maskSecret(secret)
}

// maskSecret shows the first and last 4 characters with asterisks in between.
func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

var (
	_ Credentials = APIKeyCredentials{}
	_ Credentials = LocalCredentials{}
)
