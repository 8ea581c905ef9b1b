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

package diagnostics

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/client"
	"github.com/tombee/rulegen/internal/commands/shared"
)

// StatusResult combines server health and catalog cache state.
type StatusResult struct {
	shared.JSONResponse
	Server string                 `json:"server"`
	Health *client.HealthResponse `json:"health"`
	Cache  *client.CacheStatus    `json:"cache,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and catalog cache state",
		Long: `Status asks a running rulegen server for its health, active provider and
the age of its cached capability catalog.`,
		Example: `  rulegen status
  rulegen status --server http://rules.internal:8000 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()

			health, err := c.Health(ctx)
			if err != nil {
				return unreachable(err)
			}
			res := StatusResult{Server: shared.ServerURL(), Health: health}

			// Servers without an upstream platform have no catalog cache.
			if cache, err := c.CacheStatus(ctx); err == nil {
				res.Cache = cache
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				res.JSONResponse = shared.NewJSONResponse("status", true)
				return shared.WriteJSON(out, res)
			}
			printStatus(out, res)
			return nil
		},
	}
}

func printStatus(w io.Writer, res StatusResult) {
	h := res.Health
	fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("%s is %s (up %s)", res.Server, h.Status, h.Uptime)))

	provider := h.Provider
	if provider == "" {
		provider = shared.RenderWarn("none configured")
	} else if h.Model != "" {
		provider += " / " + h.Model
	}
	fmt.Fprintf(w, "  %s %s\n", shared.RenderMuted("provider:"), provider)

	switch {
	case res.Cache == nil:
		fmt.Fprintf(w, "  %s %s\n", shared.RenderMuted("catalog:"), "no upstream platform")
	case !res.Cache.HasContext:
		fmt.Fprintf(w, "  %s %s\n", shared.RenderMuted("catalog:"), "not fetched yet")
	default:
		state := "fresh"
		if !res.Cache.IsValid {
			state = "stale"
		}
		age := 0.0
		if res.Cache.AgeMinutes != nil {
			age = *res.Cache.AgeMinutes
		}
		fmt.Fprintf(w, "  %s %s, %.1fm old (ttl %.0fm)\n", shared.RenderMuted("catalog:"), state, age, res.Cache.TTLMinutes)
	}
}
