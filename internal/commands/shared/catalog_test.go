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
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(jsonPath, []byte(`{"connectors":[{"id":"slack"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	yamlPath := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(yamlPath, []byte("connectors:\n  - id: slack\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{jsonPath, yamlPath} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			catalog, err := LoadCatalog(path)
			if err != nil {
				t.Fatalf("LoadCatalog() error = %v", err)
			}
			connectors, ok := catalog["connectors"].([]any)
			if !ok || len(connectors) != 1 {
				t.Fatalf("connectors = %#v", catalog["connectors"])
			}
			first, _ := connectors[0].(map[string]any)
			if first["id"] != "slack" {
				t.Errorf("connector id = %v, want slack", first["id"])
			}
		})
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"connectors":`), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCatalog(bad); ExitCode(err) != ExitInvalidRules {
		t.Errorf("malformed catalog exit code = %d, want %d", ExitCode(err), ExitInvalidRules)
	}
	if _, err := LoadCatalog(filepath.Join(dir, "missing.json")); ExitCode(err) != ExitConfigError {
		t.Errorf("missing catalog exit code = %d, want %d", ExitCode(err), ExitConfigError)
	}
}
