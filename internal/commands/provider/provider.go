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

// Package provider implements 'rulegen provider', which lists the
// registered LLM providers and checks that one can be reached.
package provider

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/secrets"
	"github.com/tombee/rulegen/pkg/llm"
	_ "github.com/tombee/rulegen/pkg/llm/providers"
)

// deps are the collaborators the subcommands share.
type deps struct {
	registry    *llm.Registry
	newResolver func(*slog.Logger) *secrets.Resolver
}

// NewCommand creates the provider command group.
func NewCommand() *cobra.Command {
	return newCommand(deps{registry: llm.Default(), newResolver: secrets.Default})
}

func newCommand(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Inspect LLM providers",
		Long: `Inspect the LLM providers rulegen can generate rules with.

The active provider is chosen by the llm section of the configuration or by
the upstream platform. API keys are read from <PROVIDER>_API_KEY,
RULEGEN_<PROVIDER>_API_KEY or the system keychain (see 'rulegen keys').`,
		Example: `  rulegen provider list
  rulegen provider test openai --model gpt-4o-mini`,
	}

	list := newListCmd(d)
	cmd.AddCommand(list)
	cmd.AddCommand(newTestCmd(d))

	cmd.RunE = list.RunE

	return cmd
}
