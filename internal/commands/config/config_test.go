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

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/internal/secrets"
	"github.com/tombee/rulegen/pkg/llm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	shared.SetConfigPathForTest(path)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })
	return path
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigShowMasksAPIKey(t *testing.T) {
	writeConfig(t, "llm:\n  source: local\n  provider: openai\n  api_key: sk-abcdefghijklmnop\n")
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	out, err := execute(NewConfigCommand(), "show")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	llmSection, _ := doc["llm"].(map[string]any)
	if llmSection["provider"] != "openai" {
		t.Errorf("llm.provider = %v, want openai", llmSection["provider"])
	}
	if key, _ := llmSection["api_key"].(string); strings.Contains(key, "efghijkl") {
		t.Errorf("api_key not masked: %q", key)
	}
}

func TestConfigShowYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9000\"\nllm:\n  source: local\n  provider: ollama\n")

	out, err := execute(NewConfigCommand())
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output missing path %s:\n%s", path, out)
	}
	if !strings.Contains(out, "9000") {
		t.Errorf("output missing addr:\n%s", out)
	}
}

func TestConfigPath(t *testing.T) {
	path := writeConfig(t, "llm:\n  source: local\n  provider: ollama\n")

	out, err := execute(NewConfigCommand(), "path")
	if err != nil {
		t.Fatalf("path failed: %v", err)
	}
	if strings.TrimSpace(out) != path {
		t.Errorf("path = %q, want %q", strings.TrimSpace(out), path)
	}
}

func TestValidateWarnings(t *testing.T) {
	reg := llm.NewRegistry()
	reg.RegisterFactory(llm.FactoryInfo{Name: "hosted"}, func(llm.Credentials) (llm.Provider, error) { return nil, nil })
	reg.RegisterFactory(llm.FactoryInfo{Name: "selfhosted", Local: true}, func(llm.Credentials) (llm.Provider, error) { return nil, nil })
	resolver := secrets.NewResolver(slog.Default(), secrets.NewEnvBackend())

	tests := []struct {
		name         string
		config       string
		env          map[string]string
		wantWarnings []string
	}{
		{
			name:         "hosted provider without key",
			config:       "llm:\n  source: local\n  provider: hosted\nstore:\n  backend: sqlite\n",
			env:          map[string]string{"HOSTED_API_KEY": "", "RULEGEN_HOSTED_API_KEY": ""},
			wantWarnings: []string{"no API key for hosted"},
		},
		{
			name:   "hosted provider with key",
			config: "llm:\n  source: local\n  provider: hosted\nstore:\n  backend: sqlite\n",
			env:    map[string]string{"HOSTED_API_KEY": "sk-123456789"},
		},
		{
			name:         "unknown provider and memory store",
			config:       "llm:\n  source: local\n  provider: mystery\n",
			wantWarnings: []string{"not a registered provider", "store.backend is memory"},
		},
		{
			name:         "key in file",
			config:       "llm:\n  source: local\n  provider: selfhosted\n  api_key: abc\nstore:\n  backend: sqlite\n",
			wantWarnings: []string{"llm.api_key is stored"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.config)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			result := validate(context.Background(), reg, resolver)
			if !result.Valid {
				t.Fatalf("unexpected errors: %v", result.Errors)
			}
			if len(result.Warnings) != len(tt.wantWarnings) {
				t.Fatalf("warnings = %v, want %d", result.Warnings, len(tt.wantWarnings))
			}
			for i, want := range tt.wantWarnings {
				if !strings.Contains(result.Warnings[i], want) {
					t.Errorf("warning %d = %q, want it to contain %q", i, result.Warnings[i], want)
				}
			}
		})
	}
}

func TestValidateInvalidConfig(t *testing.T) {
	writeConfig(t, "llm:\n  source: sideways\n")

	result := validate(context.Background(), llm.NewRegistry(), secrets.NewResolver(slog.Default()))
	if result.Valid {
		t.Fatal("expected invalid config")
	}

	var out bytes.Buffer
	err := outputValidationResult(&out, result, false)
	if shared.ExitCode(err) != shared.ExitConfigError {
		t.Errorf("exit code = %d, want %d", shared.ExitCode(err), shared.ExitConfigError)
	}
}

func TestValidateStrict(t *testing.T) {
	result := ValidationResult{Valid: true, Warnings: []string{"something"}}

	var out bytes.Buffer
	if err := outputValidationResult(&out, result, false); err != nil {
		t.Errorf("non-strict returned %v", err)
	}
	if err := outputValidationResult(&out, result, true); err == nil {
		t.Error("strict mode should fail on warnings")
	}
}
