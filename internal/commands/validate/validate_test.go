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

package validate

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombee/rulegen/internal/commands/shared"
)

const testCatalog = `connectors:
  - id: slack
    functions:
      - id: send_message
condition_types:
  - deploy_failed
`

const validRules = `{
  "rules": [
    {
      "name": "deploy alert",
      "trigger": {"source": "deploy_failed"},
      "actions": [{"type": "send_message", "payload": {"connector": "slack"}}]
    }
  ]
}`

const unknownConnector = `{
  "rules": [
    {
      "name": "ticket",
      "trigger": {"source": "deploy_failed"},
      "actions": [{"type": "send_message", "payload": {"connector": "jira"}}]
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(args ...string) (string, string, error) {
	cmd := NewCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestValidateValidRules(t *testing.T) {
	dir := t.TempDir()
	catalog := writeFile(t, dir, "catalog.yaml", testCatalog)
	rules := writeFile(t, dir, "rules.json", validRules)

	out, stderr, err := execute(rules, "--catalog", catalog)
	if err != nil {
		t.Fatalf("Execute() error = %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(out, "rules.json") {
		t.Errorf("stdout = %q, want file name", out)
	}
}

func TestValidateCatalogViolation(t *testing.T) {
	dir := t.TempDir()
	catalog := writeFile(t, dir, "catalog.yaml", testCatalog)
	rules := writeFile(t, dir, "rules.json", unknownConnector)

	_, stderr, err := execute(rules, "--catalog", catalog)
	if err == nil {
		t.Fatal("expected unknown connector to fail validation")
	}
	if got := shared.ExitCode(err); got != shared.ExitInvalidRules {
		t.Errorf("exit code = %d, want %d", got, shared.ExitInvalidRules)
	}
	if !strings.Contains(stderr, "jira") {
		t.Errorf("stderr = %q, want violation for jira", stderr)
	}
}

func TestValidateSchemaOnly(t *testing.T) {
	dir := t.TempDir()
	rules := writeFile(t, dir, "rules.yaml", "rules:\n  - name: missing trigger\n    actions: []\n")

	_, stderr, err := execute(rules, "--schema-only")
	if err == nil {
		t.Fatal("expected schema error")
	}
	if !strings.Contains(stderr, "schema:") {
		t.Errorf("stderr = %q, want schema error", stderr)
	}

	// The unknown connector passes when the catalog is not consulted.
	other := writeFile(t, dir, "other.json", unknownConnector)
	if _, stderr, err := execute(other, "--schema-only"); err != nil {
		t.Errorf("Execute() error = %v\nstderr: %s", err, stderr)
	}
}

func TestValidateGlob(t *testing.T) {
	dir := t.TempDir()
	catalog := writeFile(t, dir, "catalog.yaml", testCatalog)
	writeFile(t, dir, "rules/a.json", validRules)
	writeFile(t, dir, "rules/nested/b.json", unknownConnector)

	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	out, _, err := execute(filepath.Join(dir, "rules", "**", "*.json"), "--catalog", catalog)
	if err == nil {
		t.Fatal("expected one failing file")
	}

	var resp jsonOutput
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if resp.Success {
		t.Error("success = true, want false")
	}
	if !resp.CatalogChecked {
		t.Error("catalog_checked = false, want true")
	}
	if len(resp.Files) != 2 {
		t.Fatalf("got %d files, want 2", len(resp.Files))
	}
	valid := 0
	for _, f := range resp.Files {
		if f.Valid {
			valid++
		}
	}
	if valid != 1 {
		t.Errorf("valid files = %d, want 1", valid)
	}
}

func TestValidateMissingFile(t *testing.T) {
	_, stderr, err := execute(filepath.Join(t.TempDir(), "nope.json"), "--schema-only")
	if err == nil {
		t.Fatal("expected missing file to fail")
	}
	if !strings.Contains(stderr, "nope.json") {
		t.Errorf("stderr = %q, want file name", stderr)
	}
}

func TestValidateGlobWithoutMatches(t *testing.T) {
	_, _, err := execute(filepath.Join(t.TempDir(), "*.json"), "--schema-only")
	if got := shared.ExitCode(err); got != shared.ExitConfigError {
		t.Errorf("exit code = %d, want %d", got, shared.ExitConfigError)
	}
}
