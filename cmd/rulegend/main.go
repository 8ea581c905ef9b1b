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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tombee/rulegen/internal/commands/serve"
	"github.com/tombee/rulegen/internal/commands/shared"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = pflag.String("config", "", "Path to config file (default: ~/.config/rulegen/config.yaml)")
		addr        = pflag.String("addr", "", "Listen address (default from config, :8000)")
		watchConfig = pflag.Bool("watch-config", false, "Reload LLM settings when the config file changes")
		showVersion = pflag.Bool("version", false, "Show version information")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("rulegend %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := serve.Run(ctx, serve.Options{
		ConfigPath:  *configPath,
		Addr:        *addr,
		WatchConfig: *watchConfig,
		Version:     version,
	})
	if err != nil {
		stop()
		shared.HandleExitError(err)
	}
}
