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
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/client"
	"github.com/tombee/rulegen/internal/commands/completion"
	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/log"
)

const intentColumnWidth = 48

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List recent generations or show one",
		Long: `History lists the generations a running server has recorded, newest
first. Pass a generation ID (the request ID) to show its full record,
including the names that were rejected as unknown.`,
		Example: `  rulegen history
  rulegen history --limit 10 --json
  rulegen history 0b6f8f0e-8c4e-4a53-b1b5-6f0c6b7a2d91`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completion.CompleteGenerationIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				g, err := c.Generation(ctx, args[0])
				if err != nil {
					return classify(err)
				}
				if shared.GetJSON() {
					return shared.WriteJSON(out, g)
				}
				printGeneration(out, g)
				return nil
			}

			gens, err := c.Generations(ctx, limit)
			if err != nil {
				return classify(err)
			}
			if shared.GetJSON() {
				return shared.WriteJSON(out, map[string]any{"generations": gens})
			}
			return printTable(out, gens)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of generations to list (1-1000)")

	return cmd
}

func printTable(w io.Writer, gens []client.Generation) error {
	if len(gens) == 0 {
		fmt.Fprintln(w, "No generations recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tSTATUS\tATTEMPTS\tTOKENS\tINTENT")
	for _, g := range gens {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			g.ID,
			g.CreatedAt.Local().Format(time.DateTime),
			g.Status,
			g.Attempts,
			g.TotalTokens,
			log.Truncate(strings.Join(strings.Fields(g.Intent), " "), intentColumnWidth))
	}
	return tw.Flush()
}

func printGeneration(w io.Writer, g *client.Generation) {
	fmt.Fprintln(w, shared.RenderHeader("Generation "+g.ID))
	row := func(k, v string) {
		fmt.Fprintf(w, "  %-12s %s\n", shared.RenderMuted(k+":"), v)
	}
	row("kind", g.Kind)
	row("status", g.Status)
	row("when", g.CreatedAt.Local().Format(time.DateTime))
	row("provider", strings.Trim(g.Provider+" / "+g.Model, " /"))
	row("attempts", fmt.Sprint(g.Attempts))
	row("tokens", fmt.Sprint(g.TotalTokens))
	row("duration", shared.FormatElapsed(time.Duration(g.DurationMS)*time.Millisecond))
	if len(g.ForbiddenNames) > 0 {
		row("rejected", strings.Join(g.ForbiddenNames, ", "))
	}
	if g.Error != "" {
		row("error", g.Error)
	}
	fmt.Fprintf(w, "  %s\n  %s\n", shared.RenderMuted("intent:"), g.Intent)
}

func classify(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return unreachable(err)
	}
	switch apiErr.StatusCode {
	case 400, 404:
		return shared.NewConfigError("", apiErr)
	case 502, 504:
		return shared.NewProviderError("", apiErr)
	case 503:
		return shared.NewConfigError("", apiErr)
	}
	return apiErr
}
