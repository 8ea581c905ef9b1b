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

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvBackendPriority is the highest priority so the environment overrides
// anything stored on disk.
const EnvBackendPriority = 100

// envPrefix is the generic per-provider variable prefix.
const envPrefix = "RULEGEN_"

// EnvBackend reads keys from environment variables. For provider "openai"
// it checks OPENAI_API_KEY, then RULEGEN_OPENAI_API_KEY.
type EnvBackend struct {
	lookup func(string) (string, bool)
}

// NewEnvBackend creates a backend over the process environment.
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{lookup: os.LookupEnv}
}

// Name returns the backend identifier.
func (e *EnvBackend) Name() string {
	return "env"
}

// Get returns the first non-empty variable for provider.
func (e *EnvBackend) Get(_ context.Context, provider string) (string, error) {
	for _, name := range EnvVars(provider) {
		if v, ok := e.lookup(name); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s not set", ErrSecretNotFound, strings.Join(EnvVars(provider), " or "))
}

// Available always returns true.
func (e *EnvBackend) Available() bool {
	return true
}

// Priority returns the backend priority.
func (e *EnvBackend) Priority() int {
	return EnvBackendPriority
}

// EnvVars lists the variables consulted for provider, in order.
func EnvVars(provider string) []string {
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(provider))
	return []string{name + "_API_KEY", envPrefix + name + "_API_KEY"}
}
