// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tombee/rulegen/internal/jq"
	"github.com/tombee/rulegen/internal/log"
	pkgerrors "github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/httpclient"
)

const (
	// CatalogPath is the aggregated capability catalog endpoint.
	CatalogPath = "/tasks/manifest/llm-context/aggregated"

	// LLMConfigPath is the default LLM configuration endpoint.
	LLMConfigPath = "/llm-config/default"

	// HeaderUserID identifies the caller to the platform.
	HeaderUserID = "X-User-ID"

	maxResponseBytes = 16 << 20
)

// Config configures a Client.
type Config struct {
	// BaseURL is the platform API root, without a trailing slash.
	BaseURL string

	// UserID is sent as X-User-ID on configuration requests.
	UserID string

	// CatalogQuery optionally selects the catalog object out of the
	// aggregated-context response with a jq expression.
	CatalogQuery string

	// Timeout bounds each request. Default: 10s
	Timeout time.Duration

	// RetryAttempts is the number of retries for transient failures.
	RetryAttempts int

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client reads catalog and configuration snapshots from the platform.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
	query   *jq.Query
	logger  *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &pkgerrors.ConfigError{Key: "upstream.base_url", Reason: "must be set"}
	}
	if cfg.UserID == "" {
		cfg.UserID = "system"
	}
	if logger == nil {
		logger = slog.Default()
	}

	query, err := jq.Compile(cfg.CatalogQuery)
	if err != nil {
		return nil, &pkgerrors.ConfigError{Key: "upstream.catalog_query", Reason: "invalid jq expression", Cause: err}
	}

	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	} else {
		httpCfg.Timeout = 10 * time.Second
	}
	httpCfg.RetryAttempts = cfg.RetryAttempts
	httpCfg.Transport = cfg.Transport
	hc, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		userID:  cfg.UserID,
		http:    hc,
		query:   query,
		logger:  log.WithComponent(logger, "upstream"),
	}, nil
}

// BaseURL returns the platform root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchCatalog returns the current capability catalog.
func (c *Client) FetchCatalog(ctx context.Context) (map[string]any, error) {
	start := time.Now()

	var body any
	if err := c.getJSON(ctx, CatalogPath, nil, &body); err != nil {
		return nil, err
	}

	selected, err := c.query.Run(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("catalog query %q: %w", c.query.String(), err)
	}
	catalog, ok := selected.(map[string]any)
	if !ok {
		return nil, &pkgerrors.ValidationError{
			Field:      "catalog",
			Message:    fmt.Sprintf("expected a JSON object, got %T", selected),
			Suggestion: "check upstream.catalog_query",
		}
	}

	c.logger.Info("catalog fetched",
		slog.Int("sections", len(catalog)),
		slog.Int64(log.DurationKey, time.Since(start).Milliseconds()),
	)
	return catalog, nil
}

// FetchLLMConfig returns the platform's default LLM settings.
func (c *Client) FetchLLMConfig(ctx context.Context) (*LLMSettings, error) {
	var raw rawLLMConfig
	err := c.getJSON(ctx, LLMConfigPath, map[string]string{HeaderUserID: c.userID}, &raw)
	if err != nil {
		var se *StatusError
		if pkgerrors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, &pkgerrors.NotFoundError{
				Resource: "llm config",
				ID:       "default",
				Hint:     "POST /llm-config with X-User-ID header",
			}
		}
		return nil, err
	}

	settings := raw.normalize()
	c.logger.Info("llm config fetched",
		slog.String(log.ProviderKey, settings.Provider),
		slog.String(log.ModelKey, settings.Model),
	)
	return settings, nil
}

func (c *Client) getJSON(ctx context.Context, path string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("upstream %s: reading body: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: log.Truncate(string(data), 200)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("upstream %s: invalid JSON: %w", path, err)
	}
	return nil
}

// StatusError is a non-2xx response from the platform.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream %s: HTTP %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s: HTTP %d: %s", e.Path, e.StatusCode, e.Body)
}

// ErrorType implements errors.ErrorClassifier.
func (e *StatusError) ErrorType() string { return "upstream" }

// IsRetryable implements errors.ErrorClassifier.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
