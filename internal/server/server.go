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

// Package server implements the rulegen HTTP API.
//
// Every generation endpoint runs model output through the constrained
// engine, so documents returned to clients only reference identifiers that
// exist in the capability catalog. The active generator can be swapped at
// runtime (POST /config/refresh or a config file reload) without
// interrupting in-flight requests.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/tombee/rulegen/internal/cache"
	"github.com/tombee/rulegen/internal/condition"
	"github.com/tombee/rulegen/internal/config"
	"github.com/tombee/rulegen/internal/log"
	"github.com/tombee/rulegen/internal/metrics"
	"github.com/tombee/rulegen/internal/secrets"
	"github.com/tombee/rulegen/internal/store"
	"github.com/tombee/rulegen/internal/tracing"
	"github.com/tombee/rulegen/internal/upstream"
	"github.com/tombee/rulegen/pkg/generator"
	"github.com/tombee/rulegen/pkg/llm"
)

// ServiceName is reported by GET /.
const ServiceName = "rulegen"

// ErrNoProvider is returned when no generator is configured.
var ErrNoProvider = errors.New("no LLM provider configured")

// Upstream is the part of upstream.Client the server depends on.
type Upstream interface {
	FetchCatalog(ctx context.Context) (map[string]any, error)
	FetchLLMConfig(ctx context.Context) (*upstream.LLMSettings, error)
}

// Options holds the server's collaborators. Config is required; every other
// field has a usable default.
type Options struct {
	Config  *config.Config
	Version string

	// Registry provides provider factories. Default: llm.Default().
	Registry *llm.Registry

	// Upstream serves the catalog and LLM settings. Nil means requests must
	// carry their own catalog and llm.source must be local.
	Upstream Upstream

	Secrets *secrets.Resolver
	Store   store.Store
	Metrics *metrics.Collector

	// Gatherer backs GET /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Tracing wraps providers with spans and token metrics when set.
	Tracing *tracing.Provider

	Logger *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg      *config.Config
	llmCfg   atomic.Pointer[config.LLMConfig]
	version  string
	started  time.Time
	registry *llm.Registry
	upstream Upstream
	secrets  *secrets.Resolver
	store    store.Store
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
	tracing  *tracing.Provider
	logger   *slog.Logger

	catalog   *cache.TTL[map[string]any]
	llmConfig *cache.TTL[*upstream.LLMSettings]
	evaluator *condition.Evaluator
	limiter   *rate.Limiter

	active  atomic.Pointer[generator.LLMGenerator]
	handler http.Handler
}

// New creates a Server. No provider is configured until ConfigureProvider
// succeeds; until then generation endpoints answer 503.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       opts.Config,
		version:   opts.Version,
		started:   time.Now(),
		registry:  opts.Registry,
		upstream:  opts.Upstream,
		secrets:   opts.Secrets,
		store:     opts.Store,
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
		tracing:   opts.Tracing,
		logger:    log.WithComponent(logger, "server"),
		evaluator: condition.New(),
	}
	llmCfg := opts.Config.LLM
	s.llmCfg.Store(&llmCfg)

	if s.registry == nil {
		s.registry = llm.Default()
	}
	if s.secrets == nil {
		s.secrets = secrets.Default(logger)
	}
	if s.store == nil {
		s.store = store.NewMemory(opts.Config.Store.Retention)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if rl := opts.Config.Server.RateLimit; rl > 0 {
		burst := opts.Config.Server.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rl), burst)
	}

	if s.upstream != nil {
		s.catalog = cache.New("catalog", opts.Config.Cache.CatalogTTL,
			observedFetch(s.metrics, "catalog", s.upstream.FetchCatalog),
			cache.WithLogger(logger))
		s.llmConfig = cache.New("llm_config", opts.Config.Cache.ConfigTTL,
			observedFetch(s.metrics, "llm_config", s.upstream.FetchLLMConfig),
			cache.WithLogger(logger))
	}

	s.handler = s.routes()
	return s, nil
}

func observedFetch[T any](m *metrics.Collector, resource string, fetch func(context.Context) (T, error)) cache.FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		v, err := fetch(ctx)
		m.ObserveFetch(resource, err)
		return v, err
	}
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Generator returns the active generator, or nil.
func (s *Server) Generator() *generator.LLMGenerator {
	return s.active.Load()
}

// WarmUp fetches the catalog so the first request does not pay for it.
// Failure is logged, not returned.
func (s *Server) WarmUp(ctx context.Context) {
	if s.catalog == nil {
		return
	}
	if _, err := s.catalog.Get(ctx); err != nil {
		s.logger.Warn("could not warm up catalog cache", log.Error(err))
	}
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.logger.Info("rulegen server starting",
		slog.String("version", s.version),
		slog.String("listen_addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down", slog.Duration("timeout", s.cfg.Server.ShutdownTimeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}
