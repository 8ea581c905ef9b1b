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

// Package secrets implements 'rulegen secrets', which stores provider API
// keys in the system keychain.
package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/rulegen/internal/commands/completion"
	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/secrets"
	"github.com/tombee/rulegen/pkg/llm"
)

type deps struct {
	newResolver func(*slog.Logger) *secrets.Resolver
	isTerminal  func() bool
}

// NewCommand creates the secrets command.
func NewCommand() *cobra.Command {
	return newCommand(deps{
		newResolver: secrets.Default,
		isTerminal:  func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	})
}

func newCommand(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage provider API keys",
		Long: `Manage provider API keys.

Keys are resolved in this order:
  1. <PROVIDER>_API_KEY, then RULEGEN_<PROVIDER>_API_KEY
  2. The system keychain (macOS Keychain, Secret Service, Windows Credential Manager)

'set' and 'delete' act on the keychain. Environment variables are read-only.`,
		Example: `  rulegen secrets set anthropic
  echo "$KEY" | rulegen secrets set openai
  rulegen secrets get openai
  rulegen secrets delete openai`,
	}

	cmd.AddCommand(newSetCmd(d))
	cmd.AddCommand(newGetCmd(d))
	cmd.AddCommand(newDeleteCmd(d))

	return cmd
}

func newSetCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key",
		Long: `Set stores the API key for a provider. On a terminal the key is read
without echo; otherwise the first line of standard input is used.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteProviderNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := llm.Default().Canonical(args[0])

			value, err := readValue(cmd, d.isTerminal(), provider)
			if err != nil {
				return err
			}
			if value == "" {
				return shared.NewConfigError("API key is empty", nil)
			}

			resolver := d.newResolver(slog.New(slog.NewTextHandler(io.Discard, nil)))
			backend, err := resolver.Set(cmd.Context(), provider, value)
			if err != nil {
				return shared.NewConfigError("", err)
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Stored key for %s in %s", provider, backend)))
			}
			return nil
		},
	}
}

func newGetCmd(d deps) *cobra.Command {
	var unmask bool

	cmd := &cobra.Command{
		Use:               "get <provider>",
		Short:             "Show the API key a provider would use",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteProviderNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := llm.Default().Canonical(args[0])
			resolver := d.newResolver(slog.New(slog.NewTextHandler(io.Discard, nil)))

			value, err := resolver.Get(cmd.Context(), provider)
			if err != nil {
				if errors.Is(err, secrets.ErrSecretNotFound) {
					return shared.NewConfigError(fmt.Sprintf("no key for %s; set %s or run 'rulegen secrets set %s'",
						provider, strings.Join(secrets.EnvVars(provider), " or "), provider), nil)
				}
				return shared.NewConfigError("", err)
			}
			if !unmask {
				value = llm.MaskSecret(value)
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}

	cmd.Flags().BoolVar(&unmask, "unmask", false, "Print the full key")

	return cmd
}

func newDeleteCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:               "delete <provider>",
		Short:             "Remove a stored API key",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteProviderNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := llm.Default().Canonical(args[0])
			resolver := d.newResolver(slog.New(slog.NewTextHandler(io.Discard, nil)))

			if err := resolver.Delete(cmd.Context(), provider); err != nil {
				if errors.Is(err, secrets.ErrSecretNotFound) {
					return shared.NewConfigError(fmt.Sprintf("no stored key for %s", provider), nil)
				}
				return shared.NewConfigError("", err)
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Deleted key for "+provider))
			}
			return nil
		},
	}
}

func readValue(cmd *cobra.Command, tty bool, provider string) (string, error) {
	if tty {
		fmt.Fprintf(cmd.ErrOrStderr(), "API key for %s: ", provider)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
