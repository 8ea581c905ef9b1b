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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/rulegen/internal/cli"
	"github.com/tombee/rulegen/internal/commands/catalog"
	"github.com/tombee/rulegen/internal/commands/completion"
	"github.com/tombee/rulegen/internal/commands/config"
	"github.com/tombee/rulegen/internal/commands/diagnostics"
	"github.com/tombee/rulegen/internal/commands/generate"
	"github.com/tombee/rulegen/internal/commands/provider"
	"github.com/tombee/rulegen/internal/commands/secrets"
	"github.com/tombee/rulegen/internal/commands/serve"
	"github.com/tombee/rulegen/internal/commands/validate"
	versioncmd "github.com/tombee/rulegen/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Rules
	cli.AddCommand(rootCmd, cli.GroupRules, generate.NewCommand())
	cli.AddCommand(rootCmd, cli.GroupRules, validate.NewCommand())
	cli.AddCommand(rootCmd, cli.GroupRules, catalog.NewCommand())

	// Server
	cli.AddCommand(rootCmd, cli.GroupServer, serve.NewCommand())
	cli.AddCommand(rootCmd, cli.GroupServer, diagnostics.NewStatusCommand())
	cli.AddCommand(rootCmd, cli.GroupServer, diagnostics.NewRefreshCommand())
	cli.AddCommand(rootCmd, cli.GroupServer, diagnostics.NewHistoryCommand())

	// Setup
	cli.AddCommand(rootCmd, cli.GroupSetup, provider.NewCommand())
	cli.AddCommand(rootCmd, cli.GroupSetup, secrets.NewCommand())
	cli.AddCommand(rootCmd, cli.GroupSetup, config.NewConfigCommand())
	cli.AddCommand(rootCmd, cli.GroupSetup, completion.NewCommand())

	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.HandleExitError(err)
	}
}
