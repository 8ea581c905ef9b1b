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

package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/rulegen/internal/config"
	"github.com/tombee/rulegen/internal/log"
	"github.com/tombee/rulegen/internal/tracing"
	pkgerrors "github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/generator"
	"github.com/tombee/rulegen/pkg/llm"
)

const maxRetryDelay = 10 * time.Second

// providerSettings is the provider selection after merging the configured
// source with local overrides.
type providerSettings struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	APIKey      string
	BaseURL     string
}

// ConfigureProvider builds a generator from the current settings and makes
// it active. With refresh set, upstream settings are fetched again rather
// than served from cache. On failure the previous generator stays active.
func (s *Server) ConfigureProvider(ctx context.Context, refresh bool) (*generator.LLMGenerator, error) {
	ps, err := s.settings(ctx, refresh)
	if err != nil {
		return nil, err
	}
	gen, err := s.buildGenerator(ctx, ps)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Replace(gen.Provider()); err != nil {
		return nil, err
	}
	if err := s.registry.SetDefault(gen.Name()); err != nil {
		return nil, err
	}

	s.active.Store(gen)
	s.logger.Info("llm provider configured",
		slog.String(log.ProviderKey, gen.Name()),
		slog.String(log.ModelKey, gen.Model()))
	return gen, nil
}

// Reload replaces the llm section and reconfigures the provider.
func (s *Server) Reload(ctx context.Context, cfg config.LLMConfig) (*generator.LLMGenerator, error) {
	s.llmCfg.Store(&cfg)
	return s.ConfigureProvider(ctx, true)
}

func (s *Server) settings(ctx context.Context, refresh bool) (providerSettings, error) {
	cfg := *s.llmCfg.Load()
	local := providerSettings{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
	}
	if cfg.Source != config.SourceUpstream {
		return local, nil
	}
	if s.llmConfig == nil {
		return providerSettings{}, &pkgerrors.ConfigError{
			Key:    "llm.source",
			Reason: "upstream source requires upstream.base_url",
		}
	}

	get := s.llmConfig.Get
	if refresh {
		get = s.llmConfig.Refresh
	}
	us, err := get(ctx)
	if err != nil {
		return providerSettings{}, err
	}

	ps := providerSettings{
		Provider:    us.Provider,
		Model:       us.Model,
		Temperature: us.Temperature,
		MaxTokens:   us.MaxTokens,
		APIKey:      us.APIKey,
		BaseURL:     us.APIURL,
	}
	// Local overrides win over what the platform publishes.
	if cfg.Model != "" {
		ps.Model = cfg.Model
	}
	if cfg.BaseURL != "" {
		ps.BaseURL = cfg.BaseURL
	}
	if cfg.APIKey != "" {
		ps.APIKey = cfg.APIKey
	}
	return ps, nil
}

func (s *Server) buildGenerator(ctx context.Context, ps providerSettings) (*generator.LLMGenerator, error) {
	if ps.Provider == "" {
		return nil, &pkgerrors.ConfigError{Key: "llm.provider", Reason: "must be set"}
	}
	cfg := s.llmCfg.Load()

	var creds llm.Credentials
	if s.isLocal(ps.Provider) {
		creds = llm.LocalCredentials{BaseURL: ps.BaseURL, Model: ps.Model, Timeout: cfg.RequestTimeout}
	} else {
		creds = llm.APIKeyCredentials{
			APIKey:  s.secrets.APIKey(ctx, s.registry.Canonical(ps.Provider), ps.APIKey),
			BaseURL: ps.BaseURL,
			Model:   ps.Model,
			Timeout: cfg.RequestTimeout,
		}
	}

	provider, err := s.registry.Create(ps.Provider, creds)
	if err != nil {
		return nil, err
	}
	provider = llm.NewRetryableProvider(provider, llm.RetryConfig{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.RetryBackoffBase,
		MaxDelay:     maxRetryDelay,
		Multiplier:   2.0,
		Jitter:       0.1,
	})
	if s.tracing != nil {
		traced, err := tracing.WrapProvider(provider, s.tracing)
		if err != nil {
			return nil, fmt.Errorf("failed to instrument provider: %w", err)
		}
		provider = traced
	}

	return generator.New(provider,
		generator.WithModel(ps.Model),
		generator.WithTemperature(ps.Temperature),
		generator.WithMaxTokens(ps.MaxTokens),
		generator.WithConditionEvaluator(s.evaluator),
		generator.WithLogger(s.logger),
	)
}

// generatorFor returns the active generator, or a one-off generator for
// override when it names a different provider.
func (s *Server) generatorFor(ctx context.Context, override string) (*generator.LLMGenerator, error) {
	active := s.active.Load()
	if override == "" || (active != nil && s.registry.Canonical(override) == active.Name()) {
		if active == nil {
			return nil, ErrNoProvider
		}
		return active, nil
	}

	cfg := s.llmCfg.Load()
	return s.buildGenerator(ctx, providerSettings{
		Provider:    override,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
}

func (s *Server) isLocal(name string) bool {
	canonical := s.registry.Canonical(name)
	for _, info := range s.registry.ListFactories() {
		if info.Name == canonical {
			return info.Local
		}
	}
	return false
}
