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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/rulegen/internal/tracing"
	"github.com/tombee/rulegen/pkg/httpclient"
)

// DefaultTimeout covers a generation with every repair attempt.
const DefaultTimeout = 5 * time.Minute

// Client calls the rulegen API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.httpClient == nil {
		cfg := httpclient.DefaultConfig()
		cfg.Timeout = DefaultTimeout
		hc, err := httpclient.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		c.httpClient = hc
	}
	return c, nil
}

// BaseURL returns the API address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GenerateRequest is the body of POST /api/rules/generate.
type GenerateRequest struct {
	AggregatedContext map[string]any `json:"aggregated_context,omitempty"`
	UserIntent        string         `json:"user_intent"`
	ProviderOverride  string         `json:"provider_override,omitempty"`
}

// GenerateResponse is a successful generation.
type GenerateResponse struct {
	WorkflowRules      map[string]any `json:"workflow_rules"`
	ProviderUsed       string         `json:"provider_used"`
	ModelUsed          string         `json:"model_used"`
	TokensUsed         int            `json:"tokens_used"`
	GenerationTimeMS   int64          `json:"generation_time_ms"`
	Attempts           int            `json:"attempts"`
	ViolationsRepaired []string       `json:"violations_repaired"`
	EstimatedCostUSD   float64        `json:"estimated_cost_usd"`
	RequestID          string         `json:"request_id"`
}

// Violation is one catalog violation.
type Violation struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidateResponse is the answer of POST /api/rules/validate.
type ValidateResponse struct {
	Valid          bool        `json:"valid"`
	SchemaErrors   []string    `json:"schema_errors"`
	Violations     []Violation `json:"violations"`
	CatalogChecked bool        `json:"catalog_checked"`
}

// HealthResponse is the answer of GET /health.
type HealthResponse struct {
	Status                 string   `json:"status"`
	Provider               string   `json:"provider"`
	Model                  string   `json:"model"`
	ContextCacheAgeMinutes *float64 `json:"context_cache_age_minutes"`
	Uptime                 string   `json:"uptime"`
}

// CacheStatus is the answer of GET /cache/status.
type CacheStatus struct {
	IsValid    bool     `json:"is_valid"`
	AgeMinutes *float64 `json:"age_minutes"`
	TTLMinutes float64  `json:"ttl_minutes"`
	HasContext bool     `json:"has_context"`
}

// RefreshResponse is the answer of POST /config/refresh.
type RefreshResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Generation is a stored generation record.
type Generation struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Intent         string    `json:"intent"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	TotalTokens    int       `json:"total_tokens"`
	ForbiddenNames []string  `json:"forbidden_names"`
	Error          string    `json:"error"`
	CreatedAt      time.Time `json:"created_at"`
	DurationMS     int64     `json:"duration_ms"`
}

// Generate asks the server for catalog-constrained rules.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var out GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/api/rules/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate checks rules against the schema and the server's catalog.
func (c *Client) Validate(ctx context.Context, rules any, catalog map[string]any) (*ValidateResponse, error) {
	body := map[string]any{"rules": rules}
	if len(catalog) > 0 {
		body["aggregated_context"] = catalog
	}
	var out ValidateResponse
	if err := c.do(ctx, http.MethodPost, "/api/rules/validate", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CacheStatus returns the catalog cache state.
func (c *Client) CacheStatus(ctx context.Context) (*CacheStatus, error) {
	var out CacheStatus
	if err := c.do(ctx, http.MethodGet, "/cache/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InvalidateCache drops the server's cached catalog.
func (c *Client) InvalidateCache(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/cache/invalidate", nil, nil)
}

// RefreshConfig makes the server refetch provider settings.
func (c *Client) RefreshConfig(ctx context.Context) (*RefreshResponse, error) {
	var out RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/config/refresh", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generations lists recent generations, newest first.
func (c *Client) Generations(ctx context.Context, limit int) ([]Generation, error) {
	path := "/api/generations"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Generations []Generation `json:"generations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Generations, nil
}

// Generation returns one stored generation.
func (c *Client) Generation(ctx context.Context, id string) (*Generation, error) {
	var out Generation
	if err := c.do(ctx, http.MethodGet, "/api/generations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectIntoRequest(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
