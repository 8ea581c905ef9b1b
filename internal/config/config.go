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

// Package config loads rulegen configuration from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/rulegen/internal/log"
	"github.com/tombee/rulegen/internal/tracing"
	"github.com/tombee/rulegen/internal/tracing/export"
	rgerrors "github.com/tombee/rulegen/pkg/errors"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// LLM configuration sources.
const (
	// SourceUpstream fetches provider settings from the upstream platform.
	SourceUpstream = "upstream"
	// SourceLocal uses the llm section of this configuration.
	SourceLocal = "local"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config represents the complete rulegen configuration.
type Config struct {
	Server        ServerConfig   `yaml:"server"`
	Log           LogConfig      `yaml:"log"`
	LLM           LLMConfig      `yaml:"llm"`
	Upstream      UpstreamConfig `yaml:"upstream"`
	Cache         CacheConfig    `yaml:"cache"`
	Store         StoreConfig    `yaml:"store"`
	Observability tracing.Config `yaml:"observability"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address.
	// Environment: RULEGEN_ADDR, or SERVER_HOST and SERVER_PORT
	// Default: :8000
	Addr string `yaml:"addr"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Environment: RULEGEN_SHUTDOWN_TIMEOUT
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds a single API request, including every
	// generation attempt.
	// Default: 3m
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RateLimit is the sustained rate of generation requests per second.
	// 0 disables limiting.
	// Environment: RULEGEN_RATE_LIMIT
	// Default: 5
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the number of generation requests allowed in a burst.
	// Default: 10
	RateBurst int `yaml:"rate_burst"`

	// MaxBodyBytes limits request bodies.
	// Default: 4 MiB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: RULEGEN_LOG_LEVEL, LOG_LEVEL, RULEGEN_DEBUG
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: json
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source"`
}

// Logger converts the section into a log.Config writing to stderr.
func (l LogConfig) Logger() *log.Config {
	return &log.Config{
		Level:     l.Level,
		Format:    log.Format(l.Format),
		Output:    os.Stderr,
		AddSource: l.AddSource,
	}
}

// LLMConfig configures the generation provider.
type LLMConfig struct {
	// Source selects where provider settings come from: "upstream" or "local".
	// Environment: LLM_SOURCE
	// Default: upstream
	Source string `yaml:"source"`

	// Provider is the registered provider name used when Source is local.
	// Environment: LLM_PROVIDER
	// Default: anthropic
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	// Environment: LLM_MODEL
	Model string `yaml:"model"`

	// Temperature is the sampling temperature for generation.
	// Environment: LLM_TEMPERATURE
	// Default: 0.3
	Temperature float64 `yaml:"temperature"`

	// MaxTokens bounds a single generated document.
	// Environment: LLM_MAX_TOKENS
	// Default: 4096
	MaxTokens int `yaml:"max_tokens"`

	// APIKey is the provider API key. Prefer the provider's environment
	// variable or the system keychain.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint.
	// Environment: LLM_BASE_URL
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds one provider call. 0 uses the provider default.
	// Environment: LLM_REQUEST_TIMEOUT
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxRetries is the number of retries for transient provider failures.
	// Environment: LLM_MAX_RETRIES
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoffBase is the initial retry delay.
	// Default: 500ms
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`

	// SuppressionHints passes forbidden names to providers that support
	// token suppression.
	// Environment: LLM_SUPPRESSION_HINTS
	SuppressionHints bool `yaml:"suppression_hints"`
}

// UpstreamConfig configures the platform that serves the capability
// catalog and the default LLM configuration.
type UpstreamConfig struct {
	// BaseURL is the platform API root.
	// Environment: UPSTREAM_URL (NESTJS_SERVER_URL is also accepted)
	// Default: http://localhost:3000
	BaseURL string `yaml:"base_url"`

	// UserID is sent as X-User-ID when fetching the LLM configuration.
	// Environment: UPSTREAM_USER_ID (USER_ID is also accepted)
	// Default: system
	UserID string `yaml:"user_id"`

	// CatalogQuery is an optional jq expression selecting the catalog from
	// the aggregated-context response.
	// Environment: UPSTREAM_CATALOG_QUERY
	CatalogQuery string `yaml:"catalog_query"`

	// Timeout bounds each upstream request.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// RetryAttempts is the number of retries for idempotent upstream requests.
	// Default: 2
	RetryAttempts int `yaml:"retry_attempts"`
}

// CacheConfig configures upstream response caching.
type CacheConfig struct {
	// CatalogTTL is how long a fetched catalog is reused.
	// Environment: RULEGEN_CATALOG_TTL, or CONTEXT_FETCH_INTERVAL_MINUTES
	// Default: 60m
	CatalogTTL time.Duration `yaml:"catalog_ttl"`

	// ConfigTTL is how long a fetched LLM configuration is reused.
	// Environment: RULEGEN_CONFIG_TTL, or CONFIG_FETCH_INTERVAL_MINUTES
	// Default: 60m
	ConfigTTL time.Duration `yaml:"config_ttl"`
}

// StoreConfig configures generation history.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	// Environment: RULEGEN_STORE_BACKEND
	// Default: memory
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	// Environment: RULEGEN_STORE_PATH
	// Default: <data dir>/rulegen.db
	Path string `yaml:"path"`

	// Retention is the number of records kept. 0 keeps everything.
	// Default: 1000
	Retention int `yaml:"retention"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	obs := tracing.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  3 * time.Minute,
			RateLimit:       5,
			RateBurst:       10,
			MaxBodyBytes:    4 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		LLM: LLMConfig{
			Source:           SourceUpstream,
			Provider:         "anthropic",
			Temperature:      0.3,
			MaxTokens:        4096,
			MaxRetries:       2,
			RetryBackoffBase: 500 * time.Millisecond,
		},
		Upstream: UpstreamConfig{
			BaseURL:       "http://localhost:3000",
			UserID:        "system",
			Timeout:       10 * time.Second,
			RetryAttempts: 2,
		},
		Cache: CacheConfig{
			CatalogTTL: 60 * time.Minute,
			ConfigTTL:  60 * time.Minute,
		},
		Store: StoreConfig{
			Backend:   StoreMemory,
			Retention: 1000,
		},
		Observability: obs,
	}
}

// Load loads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file-based configuration. If
// configPath is empty, only defaults and environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &rgerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &rgerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a minimal file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = d.Server.RequestTimeout
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = d.Server.RateBurst
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	if c.LLM.Source == "" {
		c.LLM.Source = d.LLM.Source
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if c.LLM.RetryBackoffBase == 0 {
		c.LLM.RetryBackoffBase = d.LLM.RetryBackoffBase
	}

	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = d.Upstream.BaseURL
	}
	if c.Upstream.UserID == "" {
		c.Upstream.UserID = d.Upstream.UserID
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = d.Upstream.Timeout
	}

	if c.Cache.CatalogTTL == 0 {
		c.Cache.CatalogTTL = d.Cache.CatalogTTL
	}
	if c.Cache.ConfigTTL == 0 {
		c.Cache.ConfigTTL = d.Cache.ConfigTTL
	}

	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.Backend == StoreSQLite && c.Store.Path == "" {
		if dir, err := DataDir(); err == nil {
			c.Store.Path = filepath.Join(dir, "rulegen.db")
		}
	}

	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = d.Observability.ServiceName
	}
	if c.Observability.ServiceVersion == "" {
		c.Observability.ServiceVersion = d.Observability.ServiceVersion
	}
	if c.Observability.Exporter.Type == "" {
		c.Observability.Exporter.Type = d.Observability.Exporter.Type
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	// Server configuration
	if val := os.Getenv("RULEGEN_ADDR"); val != "" {
		c.Server.Addr = val
	} else if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Addr = net.JoinHostPort(os.Getenv("SERVER_HOST"), port)
	}
	setDuration("RULEGEN_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	setFloat("RULEGEN_RATE_LIMIT", &c.Server.RateLimit)

	// Log configuration
	lc := &log.Config{Level: c.Log.Level, Format: log.Format(c.Log.Format), AddSource: c.Log.AddSource}
	log.ApplyEnv(lc)
	c.Log.Level, c.Log.Format, c.Log.AddSource = lc.Level, string(lc.Format), lc.AddSource

	// LLM configuration
	if val := os.Getenv("LLM_SOURCE"); val != "" {
		c.LLM.Source = strings.ToLower(val)
	}
	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLM.Provider = strings.ToLower(val)
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLM.Model = val
	}
	if val := os.Getenv("LLM_BASE_URL"); val != "" {
		c.LLM.BaseURL = val
	}
	setFloat("LLM_TEMPERATURE", &c.LLM.Temperature)
	setInt("LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	setDuration("LLM_REQUEST_TIMEOUT", &c.LLM.RequestTimeout)
	setInt("LLM_MAX_RETRIES", &c.LLM.MaxRetries)
	setBool("LLM_SUPPRESSION_HINTS", &c.LLM.SuppressionHints)

	// Upstream configuration
	if val := firstEnv("UPSTREAM_URL", "NESTJS_SERVER_URL"); val != "" {
		c.Upstream.BaseURL = strings.TrimRight(val, "/")
	}
	if val := firstEnv("UPSTREAM_USER_ID", "USER_ID"); val != "" {
		c.Upstream.UserID = val
	}
	if val := os.Getenv("UPSTREAM_CATALOG_QUERY"); val != "" {
		c.Upstream.CatalogQuery = val
	}

	// Cache configuration
	setMinutes("CONTEXT_FETCH_INTERVAL_MINUTES", &c.Cache.CatalogTTL)
	setMinutes("CONFIG_FETCH_INTERVAL_MINUTES", &c.Cache.ConfigTTL)
	setDuration("RULEGEN_CATALOG_TTL", &c.Cache.CatalogTTL)
	setDuration("RULEGEN_CONFIG_TTL", &c.Cache.ConfigTTL)

	// Store configuration
	if val := os.Getenv("RULEGEN_STORE_BACKEND"); val != "" {
		c.Store.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("RULEGEN_STORE_PATH"); val != "" {
		c.Store.Path = val
	}

	// Observability configuration
	setBool("RULEGEN_TRACING_ENABLED", &c.Observability.Enabled)
	if val := os.Getenv("RULEGEN_TRACING_EXPORTER"); val != "" {
		c.Observability.Exporter.Type = strings.ToLower(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Observability.Exporter.Endpoint = val
		if os.Getenv("RULEGEN_TRACING_EXPORTER") == "" && c.Observability.Exporter.Type == export.TypeConsole {
			c.Observability.Exporter.Type = export.TypeOTLPHTTP
		}
	}
	if val := os.Getenv("OTEL_SERVICE_NAME"); val != "" {
		c.Observability.ServiceName = val
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	} else if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, fmt.Sprintf("server.addr %q is not host:port", c.Server.Addr))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.request_timeout must be positive, got %v", c.Server.RequestTimeout))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("server.rate_limit must be non-negative, got %v", c.Server.RateLimit))
	}
	if c.Server.RateBurst < 1 {
		errs = append(errs, fmt.Sprintf("server.rate_burst must be at least 1, got %d", c.Server.RateBurst))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.LLM.Source != SourceUpstream && c.LLM.Source != SourceLocal {
		errs = append(errs, fmt.Sprintf("llm.source must be one of [upstream, local], got %q", c.LLM.Source))
	}
	if c.LLM.Source == SourceLocal && c.LLM.Provider == "" {
		errs = append(errs, "llm.provider is required when llm.source is local")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Sprintf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.RequestTimeout < 0 {
		errs = append(errs, fmt.Sprintf("llm.request_timeout must be non-negative, got %v", c.LLM.RequestTimeout))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("llm.max_retries must be non-negative, got %d", c.LLM.MaxRetries))
	}

	if c.LLM.Source == SourceUpstream && c.Upstream.BaseURL == "" {
		errs = append(errs, "upstream.base_url is required when llm.source is upstream")
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("upstream.timeout must be positive, got %v", c.Upstream.Timeout))
	}
	if c.Upstream.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("upstream.retry_attempts must be non-negative, got %d", c.Upstream.RetryAttempts))
	}

	if c.Cache.CatalogTTL <= 0 {
		errs = append(errs, fmt.Sprintf("cache.catalog_ttl must be positive, got %v", c.Cache.CatalogTTL))
	}
	if c.Cache.ConfigTTL <= 0 {
		errs = append(errs, fmt.Sprintf("cache.config_ttl must be positive, got %v", c.Cache.ConfigTTL))
	}

	switch c.Store.Backend {
	case StoreMemory, StoreSQLite:
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be one of [memory, sqlite], got %q", c.Store.Backend))
	}
	if c.Store.Retention < 0 {
		errs = append(errs, fmt.Sprintf("store.retention must be non-negative, got %d", c.Store.Retention))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("observability: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func setMinutes(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Minute
		}
	}
}

func setInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func setFloat(key string, dst *float64) {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		*dst = val == "1" || strings.EqualFold(val, "true")
	}
}
