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

package shared

import (
	"log/slog"
	"os"

	"github.com/tombee/rulegen/internal/config"
	"github.com/tombee/rulegen/internal/log"
)

// LoadConfig loads configuration from --config, falling back to the
// default config file when it exists.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(GetConfigPath()))
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// Logger builds the CLI logger. Output goes to stderr; --verbose lowers the
// level to debug and --quiet raises it to error.
func Logger(cfg *config.Config) *slog.Logger {
	lc := cfg.Log.Logger()
	lc.Output = os.Stderr
	switch {
	case GetVerbose():
		lc.Level = "debug"
	case GetQuiet():
		lc.Level = "error"
	}
	return log.New(lc)
}

// ServerURL returns the API address from --server, RULEGEN_SERVER or the
// default.
func ServerURL() string {
	if serverFlag != "" {
		return serverFlag
	}
	if v := os.Getenv("RULEGEN_SERVER"); v != "" {
		return v
	}
	return DefaultServerURL
}
