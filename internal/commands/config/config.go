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

// Package config implements 'rulegen config', which shows and checks the
// effective configuration.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/config"
	"github.com/tombee/rulegen/pkg/llm"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and check configuration",
		Long: `View and check rulegen configuration.

Subcommands:
  show     - Display the effective configuration
  path     - Show config file location
  validate - Check the configuration and report warnings`,
	}

	show := newConfigShowCommand()
	cmd.AddCommand(show)
	cmd.AddCommand(newConfigPathCommand())
	cmd.AddCommand(NewValidateCommand())

	cmd.RunE = show.RunE

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after defaults, the config file and environment
variables have been applied.

API keys are masked. Use --json for machine-readable output.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolvePath(shared.GetConfigPath())
			if path == "" {
				p, err := config.ConfigPath()
				if err != nil {
					return fmt.Errorf("failed to determine config path: %w", err)
				}
				path = p + " (not present)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	masked := maskSensitiveConfig(cfg)

	doc, err := toDocument(masked)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.WriteJSON(out, doc)
	}
	return outputConfigYAML(out, config.ResolvePath(shared.GetConfigPath()), doc)
}

// maskSensitiveConfig returns a copy of cfg with secrets masked.
func maskSensitiveConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = llm.MaskSecret(masked.LLM.APIKey)
	}
	return &masked
}

// toDocument converts cfg to its YAML field names so JSON output uses the
// same keys as the config file.
func toDocument(cfg *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return doc, nil
}

func outputConfigYAML(w io.Writer, path string, doc map[string]any) error {
	if path == "" {
		path = "defaults (no config file)"
	}
	fmt.Fprintf(w, "%s %s\n", shared.RenderHeader("Configuration:"), path)
	fmt.Fprintln(w, strings.Repeat("=", 50))

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return encoder.Close()
}
