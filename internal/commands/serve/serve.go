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

// Package serve runs the rulegen HTTP API in-process. It is shared by
// 'rulegen serve' and the rulegend binary.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/config"
	"github.com/tombee/rulegen/internal/log"
	"github.com/tombee/rulegen/internal/metrics"
	"github.com/tombee/rulegen/internal/secrets"
	"github.com/tombee/rulegen/internal/server"
	"github.com/tombee/rulegen/internal/store"
	"github.com/tombee/rulegen/internal/tracing"
	"github.com/tombee/rulegen/internal/upstream"
	"github.com/tombee/rulegen/pkg/llm"

	// Register provider factories.
	_ "github.com/tombee/rulegen/pkg/llm/providers"
)

// Options configures Run.
type Options struct {
	// ConfigPath is the config file. Empty uses the default location when
	// it exists.
	ConfigPath string

	// Addr overrides server.addr.
	Addr string

	// WatchConfig reloads the llm section when the config file changes.
	WatchConfig bool

	Version string
}

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rule generation API",
		Long: `Run the rule generation HTTP API in the foreground.

The server fetches the capability catalog and LLM settings from the
upstream platform (upstream.base_url) unless llm.source is "local".
Generation endpoints answer 503 until a provider is configured.`,
		Example: `  # Serve on the configured address
  rulegen serve

  # Serve on another port and reload LLM settings when the file changes
  rulegen serve --addr :9000 --watch-config`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigPath = shared.GetConfigPath()
			opts.Version, _, _ = shared.GetVersion()
			return Run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default from config, :8000)")
	cmd.Flags().BoolVar(&opts.WatchConfig, "watch-config", false, "Reload LLM settings when the config file changes")

	return cmd
}

// Run serves until ctx is done.
func Run(ctx context.Context, opts Options) error {
	path := config.ResolvePath(opts.ConfigPath)
	cfg, err := config.Load(path)
	if err != nil {
		return shared.NewConfigError("failed to load configuration", err)
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	logger := log.New(cfg.Log.Logger())
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cfg.Observability.ServiceVersion = opts.Version
	tp, err := tracing.Setup(ctx, cfg.Observability, reg)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracing shutdown failed", log.Error(err))
		}
	}()

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	var up server.Upstream
	if cfg.Upstream.BaseURL != "" {
		c, err := upstream.New(upstream.Config{
			BaseURL:       cfg.Upstream.BaseURL,
			UserID:        cfg.Upstream.UserID,
			CatalogQuery:  cfg.Upstream.CatalogQuery,
			Timeout:       cfg.Upstream.Timeout,
			RetryAttempts: cfg.Upstream.RetryAttempts,
		}, logger)
		if err != nil {
			return err
		}
		up = c
	}

	srv, err := server.New(server.Options{
		Config:   cfg,
		Version:  opts.Version,
		Registry: llm.Default(),
		Upstream: up,
		Secrets:  secrets.Default(logger),
		Store:    st,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Tracing:  tp,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if _, err := srv.ConfigureProvider(ctx, false); err != nil {
		logger.Error("no LLM provider configured; generation endpoints will answer 503", log.Error(err))
	}
	srv.WarmUp(ctx)

	if opts.WatchConfig {
		if path == "" {
			logger.Warn("--watch-config ignored: no config file")
		} else {
			w, err := NewWatcher(path, logger, func(next *config.Config) {
				reloadLLM(ctx, srv, cfg, next, logger)
			})
			if err != nil {
				return err
			}
			defer w.Close()
		}
	}

	return srv.Run(ctx)
}

// reloadLLM applies next's llm section when it differs from the running one.
func reloadLLM(ctx context.Context, srv *server.Server, running, next *config.Config, logger *slog.Logger) {
	if next.LLM == running.LLM {
		logger.Debug("config changed outside the llm section; nothing to reload")
		return
	}
	gen, err := srv.Reload(ctx, next.LLM)
	if err != nil {
		logger.Error("failed to reload LLM settings", log.Error(err))
		return
	}
	running.LLM = next.LLM
	logger.Info("LLM settings reloaded",
		slog.String(log.ProviderKey, gen.Name()),
		slog.String(log.ModelKey, gen.Model()))
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	path := cfg.Path
	if cfg.Backend == config.StoreSQLite && path == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}
		path = filepath.Join(dir, "rulegen.db")
	}
	return store.Open(store.Config{Backend: cfg.Backend, Path: path, Retention: cfg.Retention})
}
