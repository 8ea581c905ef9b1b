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

// Package shared holds state and helpers common to every rulegen command:
// global flags, exit codes, output styling and configuration loading.
package shared

// DefaultServerURL is the API address commands talk to when --server is not
// given and RULEGEN_SERVER is unset.
const DefaultServerURL = "http://localhost:8000"

var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string
	serverFlag  string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Flags holds pointers to the global flag values for registration on the
// root command.
type Flags struct {
	Verbose *bool
	Quiet   *bool
	JSON    *bool
	Config  *string
	Server  *string
}

// RegisterFlagPointers returns the global flag targets.
func RegisterFlagPointers() Flags {
	return Flags{
		Verbose: &verboseFlag,
		Quiet:   &quietFlag,
		JSON:    &jsonFlag,
		Config:  &configFlag,
		Server:  &serverFlag,
	}
}

// SetVersion records build information. Called from main.
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

func GetVerbose() bool {
	return verboseFlag
}

func GetQuiet() bool {
	return quietFlag
}

func GetJSON() bool {
	return jsonFlag
}

func GetConfigPath() string {
	return configFlag
}

func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// SetConfigPathForTest overrides --config.
func SetConfigPathForTest(path string) {
	configFlag = path
}

// SetJSONForTest overrides --json.
func SetJSONForTest(v bool) {
	jsonFlag = v
}
