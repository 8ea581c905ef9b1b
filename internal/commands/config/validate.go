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

package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/config"
	"github.com/tombee/rulegen/internal/secrets"
	"github.com/tombee/rulegen/pkg/llm"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Path     string   `json:"path,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long: `Validate loads the configuration and reports errors and warnings.

Warnings cover settings that load but are likely to fail at runtime, such as
a hosted provider with no API key. With --strict, warnings are treated as
errors.`,
		Example: `  rulegen config validate
  rulegen config validate --strict --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := secrets.Default(slog.New(slog.NewTextHandler(io.Discard, nil)))
			result := validate(cmd.Context(), llm.Default(), resolver)
			return outputValidationResult(cmd.OutOrStdout(), result, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

func validate(ctx context.Context, reg *llm.Registry, resolver *secrets.Resolver) ValidationResult {
	path := config.ResolvePath(shared.GetConfigPath())
	cfg, err := config.Load(path)
	if err != nil {
		return ValidationResult{Path: path, Errors: []string{err.Error()}}
	}

	return ValidationResult{Valid: true, Path: path, Warnings: warnings(ctx, cfg, reg, resolver)}
}

func warnings(ctx context.Context, cfg *config.Config, reg *llm.Registry, resolver *secrets.Resolver) []string {
	var out []string

	if cfg.LLM.APIKey != "" {
		out = append(out, "llm.api_key is stored in the config file; prefer an environment variable or 'rulegen secrets set'")
	}

	if cfg.LLM.Source == config.SourceLocal {
		name := reg.Canonical(cfg.LLM.Provider)
		info, known := factory(reg, name)
		switch {
		case !known:
			out = append(out, fmt.Sprintf("llm.provider %q is not a registered provider", cfg.LLM.Provider))
		case !info.Local && cfg.LLM.APIKey == "":
			if _, err := resolver.Get(ctx, name); err != nil {
				out = append(out, fmt.Sprintf("no API key for %s; set %s", name, strings.Join(secrets.EnvVars(name), " or ")))
			}
		}
	}

	if cfg.Store.Backend == config.StoreMemory {
		out = append(out, "store.backend is memory; generation history is lost on restart")
	}
	if cfg.Server.RateLimit == 0 {
		out = append(out, "server.rate_limit is 0; generation requests are not rate limited")
	}
	return out
}

func factory(reg *llm.Registry, name string) (llm.FactoryInfo, bool) {
	for _, info := range reg.ListFactories() {
		if info.Name == name {
			return info, true
		}
	}
	return llm.FactoryInfo{}, false
}

func outputValidationResult(w io.Writer, result ValidationResult, strict bool) error {
	failed := !result.Valid || (strict && len(result.Warnings) > 0)

	if shared.GetJSON() {
		if err := shared.WriteJSON(w, result); err != nil {
			return err
		}
	} else {
		for _, e := range result.Errors {
			fmt.Fprintln(w, shared.RenderError(e))
		}
		for _, warn := range result.Warnings {
			fmt.Fprintln(w, shared.RenderWarn(warn))
		}
		if !failed {
			fmt.Fprintln(w, shared.RenderOK("Configuration is valid"))
		}
	}

	if failed {
		msg := "configuration is invalid"
		if result.Valid {
			msg = fmt.Sprintf("configuration has %d warnings (--strict)", len(result.Warnings))
		}
		return shared.NewConfigError(msg, nil)
	}
	return nil
}
