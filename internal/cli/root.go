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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/commands/shared"
)

// Command group IDs used by main when registering commands.
const (
	GroupRules  = "rules"
	GroupServer = "server"
	GroupSetup  = "setup"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for rulegen
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rulegen",
		Short: "rulegen - catalog-constrained workflow rule generation",
		Long: `rulegen turns natural-language intents into event-driven workflow rules
with a Large Language Model, and rejects any rule that references a
connector, action or trigger missing from the capability catalog.

Run 'rulegend' to start the API server, then 'rulegen generate "<intent>"'.
Use 'rulegen validate' and 'rulegen catalog' to work with rules offline.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	cmd.AddGroup(
		&cobra.Group{ID: GroupRules, Title: "Rules:"},
		&cobra.Group{ID: GroupServer, Title: "Server:"},
		&cobra.Group{ID: GroupSetup, Title: "Setup:"},
	)

	flags := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(flags.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(flags.Quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(flags.JSON, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(flags.Config, "config", "", "Path to config file (default: ~/.config/rulegen/config.yaml)")
	cmd.PersistentFlags().StringVar(flags.Server, "server", "", "rulegen server URL (default: $RULEGEN_SERVER or "+shared.DefaultServerURL+")")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

// AddCommand registers sub under group on root.
func AddCommand(root *cobra.Command, group string, sub *cobra.Command) {
	sub.GroupID = group
	root.AddCommand(sub)
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
