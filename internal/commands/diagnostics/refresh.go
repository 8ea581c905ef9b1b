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

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/client"
	"github.com/tombee/rulegen/internal/commands/shared"
)

type refreshResult struct {
	shared.JSONResponse
	Config           *client.RefreshResponse `json:"config,omitempty"`
	CacheInvalidated bool                    `json:"cache_invalidated"`
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand() *cobra.Command {
	var cacheOnly, withCache bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Make the server reload its provider settings",
		Long: `Refresh asks a running server to fetch its LLM settings again and rebuild
the active provider. With --cache the cached capability catalog is also
dropped so the next generation fetches a fresh one; --cache-only skips the
provider reload.`,
		Example: `  rulegen refresh
  rulegen refresh --cache
  rulegen refresh --cache-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()

			var res refreshResult
			if !cacheOnly {
				resp, err := c.RefreshConfig(ctx)
				if err != nil {
					return classify(err)
				}
				res.Config = resp
			}
			if withCache || cacheOnly {
				if err := c.InvalidateCache(ctx); err != nil {
					return classify(err)
				}
				res.CacheInvalidated = true
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				res.JSONResponse = shared.NewJSONResponse("refresh", true)
				return shared.WriteJSON(out, res)
			}
			if res.Config != nil {
				fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Provider reloaded: %s / %s", res.Config.Provider, res.Config.Model)))
			}
			if res.CacheInvalidated {
				fmt.Fprintln(out, shared.RenderOK("Catalog cache invalidated"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withCache, "cache", false, "Also invalidate the catalog cache")
	cmd.Flags().BoolVar(&cacheOnly, "cache-only", false, "Only invalidate the catalog cache")
	cmd.MarkFlagsMutuallyExclusive("cache", "cache-only")

	return cmd
}
