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

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/commands/completion"
	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/pkg/llm"
)

const testTimeout = 30 * time.Second

type testResult struct {
	shared.JSONResponse
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Tokens    int    `json:"tokens,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newTestCmd(d deps) *cobra.Command {
	var (
		model   string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "test [name]",
		Short: "Check that a provider answers",
		Long: `Test builds the named provider, or the configured one, and checks that it
answers. Providers with a health endpoint are probed there; others are sent
a one-line completion.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completion.CompleteProviderNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			name := cfg.LLM.Provider
			if len(args) == 1 {
				name = args[0]
			}
			if name == "" {
				return shared.NewConfigError("no provider named and llm.provider is not set", nil)
			}
			if model == "" && len(args) == 0 {
				model = cfg.LLM.Model
			}
			if baseURL == "" && len(args) == 0 {
				baseURL = cfg.LLM.BaseURL
			}

			resolver := d.newResolver(shared.Logger(cfg))
			name = d.registry.Canonical(name)
			creds := credentials(d.registry, name, model, baseURL, func() string {
				return resolver.APIKey(cmd.Context(), name, "")
			})

			p, err := d.registry.Create(name, creds)
			if err != nil {
				if errors.Is(err, llm.ErrFactoryNotFound) {
					return shared.NewConfigError(fmt.Sprintf("unknown provider %q", name), nil)
				}
				return shared.NewProviderError("", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), testTimeout)
			defer cancel()
			res := probe(ctx, p, model)

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				res.JSONResponse = shared.NewJSONResponse("provider test", res.Error == "")
				if err := shared.WriteJSON(out, res); err != nil {
					return err
				}
			} else if res.Error == "" {
				fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s answered in %dms", res.Provider, res.LatencyMS)))
			}
			if res.Error != "" {
				return shared.NewProviderError(name+" did not answer", errors.New(res.Error))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Model to test (default: provider default)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Override the provider endpoint")

	return cmd
}

func credentials(reg *llm.Registry, name, model, baseURL string, apiKey func() string) llm.Credentials {
	for _, info := range reg.ListFactories() {
		if info.Name == name && info.Local {
			return llm.LocalCredentials{BaseURL: baseURL, Model: model, Timeout: testTimeout}
		}
	}
	return llm.APIKeyCredentials{APIKey: apiKey(), BaseURL: baseURL, Model: model, Timeout: testTimeout}
}

func probe(ctx context.Context, p llm.Provider, model string) testResult {
	res := testResult{Provider: p.Name(), Model: model}
	start := time.Now()

	if hc, ok := p.(llm.HealthCheckable); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			res.Error = err.Error()
		}
		res.LatencyMS = time.Since(start).Milliseconds()
		return res
	}

	maxTokens := 8
	resp, err := p.Complete(ctx, llm.CompletionRequest{
		Model:     model,
		MaxTokens: &maxTokens,
		Messages:  []llm.Message{{Role: llm.MessageRoleUser, Content: "Reply with OK."}},
	})
	res.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Tokens = resp.Usage.TotalTokens
	if resp.Model != "" {
		res.Model = resp.Model
	}
	return res
}
