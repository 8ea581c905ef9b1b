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
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/config"
)

// Status is one provider in the listing.
type Status struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Local       bool   `json:"local"`
	KeySet      bool   `json:"key_set"`
	Default     bool   `json:"default"`
}

type listOutput struct {
	shared.JSONResponse
	Providers []Status `json:"providers"`
}

func newListCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered providers and key availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			resolver := d.newResolver(shared.Logger(cfg))
			configured := d.registry.Canonical(cfg.LLM.Provider)

			var statuses []Status
			for _, info := range d.registry.ListFactories() {
				s := Status{
					Name:        info.Name,
					Description: info.Description,
					Local:       info.Local,
					Default:     info.Name == configured,
				}
				if !info.Local {
					_, err := resolver.Get(cmd.Context(), info.Name)
					s.KeySet = err == nil
				}
				statuses = append(statuses, s)
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.WriteJSON(out, listOutput{
					JSONResponse: shared.NewJSONResponse("provider list", true),
					Providers:    statuses,
				})
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKEY\tDESCRIPTION")
			for _, s := range statuses {
				name := s.Name
				if s.Default {
					name += " *"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, keyLabel(s), s.Description)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if cfg.LLM.Source == config.SourceUpstream {
				fmt.Fprintln(out, shared.RenderMuted("\nllm.source is upstream; the platform chooses the active provider"))
			}
			return nil
		},
	}
}

func keyLabel(s Status) string {
	switch {
	case s.Local:
		return "n/a"
	case s.KeySet:
		return "set"
	}
	return "missing"
}
