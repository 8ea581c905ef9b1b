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

// Package generate implements 'rulegen generate', which asks a running
// server for catalog-constrained workflow rules.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/client"
	"github.com/tombee/rulegen/internal/commands/completion"
	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/tracing"
)

type options struct {
	provider    string
	catalogPath string
	outPath     string
}

// NewCommand creates the generate command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "generate <intent...>",
		Short: "Generate workflow rules from a natural-language intent",
		Long: `Generate sends an intent to the rulegen server and prints the resulting
rules document. The server retries with a growing list of forbidden names
until every connector, action type and trigger source exists in the
capability catalog.

Use "-" as the intent to read it from standard input.

Exit codes:
  0  rules generated
  2  generation exhausted its attempts or the request was invalid
  3  the model provider failed`,
		Example: `  rulegen generate "post to slack when a deploy fails"
  echo "page on-call on sev1 incidents" | rulegen generate -
  rulegen generate --catalog catalog.json -o rules.json "notify on failure"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.provider, "provider", "", "Use this provider instead of the server default")
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "Capability catalog file (JSON or YAML) to send with the request")
	cmd.Flags().StringVarP(&opts.outPath, "output", "o", "", "Write the rules document to this file")

	_ = cmd.RegisterFlagCompletionFunc("provider", completion.CompleteProviderNames)
	_ = cmd.MarkFlagFilename("catalog", "json", "yaml", "yml")

	return cmd
}

func run(cmd *cobra.Command, args []string, opts options) error {
	intent, err := readIntent(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	req := client.GenerateRequest{UserIntent: intent, ProviderOverride: opts.provider}
	if opts.catalogPath != "" {
		catalog, err := shared.LoadCatalog(opts.catalogPath)
		if err != nil {
			return err
		}
		req.AggregatedContext = catalog
	}

	c, err := client.New(shared.ServerURL())
	if err != nil {
		return shared.NewConfigError("invalid --server", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.ToContext(ctx, tracing.NewRequestID())

	spinner := shared.NewSpinner()
	if !shared.GetQuiet() && !shared.GetJSON() {
		spinner.Start("Generating rules")
	}
	resp, err := c.Generate(ctx, req)
	spinner.Stop()
	if err != nil {
		return classify(err)
	}

	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.outPath, err)
		}
		defer f.Close()
		if err := shared.WriteJSON(f, resp.WorkflowRules); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.outPath, err)
		}
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.WriteJSON(out, resp)
	}
	if opts.outPath == "" {
		if err := shared.WriteJSON(out, resp.WorkflowRules); err != nil {
			return err
		}
	}
	if !shared.GetQuiet() {
		printSummary(cmd.ErrOrStderr(), resp, opts.outPath)
	}
	return nil
}

func readIntent(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read intent: %w", err)
		}
		args = []string{string(data)}
	}
	intent := strings.TrimSpace(strings.Join(args, " "))
	if intent == "" {
		return "", shared.NewInvalidRulesError("intent is empty", nil)
	}
	return intent, nil
}

func printSummary(w io.Writer, resp *client.GenerateResponse, outPath string) {
	if outPath != "" {
		fmt.Fprintln(w, shared.RenderOK("Rules written to "+outPath))
	} else {
		fmt.Fprintln(w, shared.RenderOK("Rules generated"))
	}
	fmt.Fprintf(w, "  %s %s / %s\n", shared.RenderMuted("model:"), resp.ProviderUsed, resp.ModelUsed)
	fmt.Fprintf(w, "  %s %d, %s %d\n",
		shared.RenderMuted("attempts:"), resp.Attempts,
		shared.RenderMuted("tokens:"), resp.TokensUsed)
	if resp.EstimatedCostUSD > 0 {
		fmt.Fprintf(w, "  %s $%.4f\n", shared.RenderMuted("estimated cost:"), resp.EstimatedCostUSD)
	}
	if len(resp.ViolationsRepaired) > 0 {
		fmt.Fprintln(w, shared.RenderWarn("Repaired references to unknown names: "+strings.Join(resp.ViolationsRepaired, ", ")))
	}
}

func classify(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return shared.NewProviderError("could not reach the rulegen server", err)
	}
	switch {
	case apiErr.Exhausted():
		msg := fmt.Sprintf("generation failed after %d attempts", apiErr.Attempts)
		if len(apiErr.Forbidden) > 0 {
			msg += "; unknown names: " + strings.Join(apiErr.Forbidden, ", ")
		}
		return shared.NewInvalidRulesError(msg, nil)
	case apiErr.StatusCode == 400 || apiErr.StatusCode == 422:
		return shared.NewInvalidRulesError("", apiErr)
	case apiErr.StatusCode == 502 || apiErr.StatusCode == 504:
		return shared.NewProviderError("", apiErr)
	case apiErr.StatusCode == 503:
		return shared.NewConfigError("", apiErr)
	}
	return apiErr
}
