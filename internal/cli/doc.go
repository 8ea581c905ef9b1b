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

/*
Package cli provides the root command and shared configuration for the
rulegen CLI.

This package creates the main Cobra command tree and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	rulegen
	├── generate      Generate rules from an intent (needs a server)
	├── validate      Check rules files against the schema and catalog
	├── catalog       Show the allowlist or the prompt preamble
	├── serve         Run the HTTP API server
	├── status        Server health and catalog cache state
	├── refresh       Reload provider settings, invalidate the catalog cache
	├── history       Recorded generations
	├── provider      List and test LLM providers
	├── secrets       Store provider API keys in the keychain
	├── config        Show and validate configuration
	├── completion    Generate shell completion scripts
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	cli.AddCommand(rootCmd, cli.GroupRules, generate.NewCommand())
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file
	--server         rulegen server URL

# Exit Codes

  - 0: Success
  - 1: General error
  - 2: Invalid rules, or generation exhausted its attempts
  - 3: Provider or server failure
  - 4: Configuration error
*/
package cli
