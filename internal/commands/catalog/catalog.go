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

// Package catalog implements 'rulegen catalog', which inspects the
// capability catalog that generated rules are checked against.
package catalog

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/pkg/constrain"
)

type options struct {
	file      string
	preamble  bool
	attempt   int
	forbidden []string
}

type summary struct {
	shared.JSONResponse
	Active         bool     `json:"active"`
	ConnectorIDs   []string `json:"connector_ids"`
	ActionTypes    []string `json:"action_types"`
	TriggerSources []string `json:"trigger_sources"`
	Preamble       string   `json:"preamble,omitempty"`
}

// NewCommand creates the catalog command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the identifiers generated rules may reference",
		Long: `Catalog loads the capability catalog from --file or the configured
platform and lists the connector IDs, action types and trigger sources
that make up the allowlist.

With --preamble it prints the constraint block that is prepended to the
generation prompt for the given attempt, including any --forbid names.`,
		Example: `  rulegen catalog
  rulegen catalog --file catalog.yaml --json
  rulegen catalog --preamble --attempt 2 --forbid jira --forbid zendesk`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read the catalog from a JSON or YAML file")
	cmd.Flags().BoolVar(&opts.preamble, "preamble", false, "Print the prompt preamble instead of the summary")
	cmd.Flags().IntVar(&opts.attempt, "attempt", 1, "Attempt number used to pick the preamble severity")
	cmd.Flags().StringArrayVar(&opts.forbidden, "forbid", nil, "Name to list as forbidden (repeatable)")

	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	if opts.attempt < 1 || opts.attempt > constrain.MaxAttempts {
		return shared.NewConfigError(fmt.Sprintf("--attempt must be between 1 and %d", constrain.MaxAttempts), nil)
	}

	catalog, err := shared.ResolveCatalog(cmd.Context(), opts.file)
	if err != nil {
		return err
	}
	a := constrain.BuildAllowlist(catalog)
	out := cmd.OutOrStdout()

	if shared.GetJSON() {
		s := summary{
			JSONResponse:   shared.NewJSONResponse("catalog", true),
			Active:         a.Active(),
			ConnectorIDs:   a.ConnectorIDs(),
			ActionTypes:    a.ActionTypes(),
			TriggerSources: a.TriggerSources(),
		}
		if opts.preamble {
			s.Preamble = constrain.RenderPreamble(a, opts.forbidden, opts.attempt)
		}
		return shared.WriteJSON(out, s)
	}

	if opts.preamble {
		_, err := io.WriteString(out, constrain.RenderPreamble(a, opts.forbidden, opts.attempt))
		return err
	}

	printSummary(out, a)
	return nil
}

func printSummary(w io.Writer, a *constrain.Allowlist) {
	if !a.Active() {
		fmt.Fprintln(w, shared.RenderWarn("Catalog is empty; generated rules will not be checked"))
		return
	}
	section(w, "Connectors", a.ConnectorIDs())
	section(w, "Action types", a.ActionTypes())
	section(w, "Trigger sources", a.TriggerSources())
}

func section(w io.Writer, title string, items []string) {
	fmt.Fprintf(w, "%s %s\n", shared.RenderHeader(title), shared.RenderMuted(fmt.Sprintf("(%d)", len(items))))
	if len(items) == 0 {
		fmt.Fprintln(w, "  "+shared.RenderMuted("none"))
	} else {
		fmt.Fprintln(w, "  "+strings.Join(items, "\n  "))
	}
	fmt.Fprintln(w)
}
