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

package completion

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/tombee/rulegen/pkg/llm"
)

func TestCompletionCommand(t *testing.T) {
	root := &cobra.Command{Use: "rulegen"}
	root.AddCommand(NewCommand())

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			var buf bytes.Buffer
			root.SetOut(&buf)
			root.SetArgs([]string{"completion", shell})
			if err := root.Execute(); err != nil {
				t.Fatalf("completion %s failed: %v", shell, err)
			}
			if !strings.Contains(buf.String(), "rulegen") {
				t.Errorf("%s script does not mention rulegen", shell)
			}
		})
	}

	root.SetArgs([]string{"completion", "tcsh"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for unsupported shell")
	}
}

func TestSafeCompletionWrapper(t *testing.T) {
	results, directive := SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		panic("boom")
	})
	if len(results) != 0 || directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("panic: got %v, %d", results, directive)
	}

	results, _ = SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return nil, cobra.ShellCompDirectiveDefault
	})
	if results == nil {
		t.Error("nil results should become an empty slice")
	}
}

func TestProviderNames(t *testing.T) {
	reg := llm.NewRegistry()
	reg.RegisterFactory(llm.FactoryInfo{Name: "openai", Description: "OpenAI"}, nil)
	reg.RegisterFactory(llm.FactoryInfo{Name: "ollama"}, nil)

	got := providerNames(reg)
	want := []string{"ollama", "openai\tOpenAI"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCompleteGenerationIDs(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generations" {
			http.NotFound(w, r)
			return
		}
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"generations":[
			{"id":"gen-1","status":"succeeded","intent":"notify on deploy failure"},
			{"id":"gen-2","status":"exhausted","intent":"open a ticket"}
		]}`))
	}))
	defer server.Close()
	t.Setenv("RULEGEN_SERVER", server.URL)
	generations = newGenerationCache()

	completions, directive := CompleteGenerationIDs(nil, nil, "")
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("directive = %d", directive)
	}
	if len(completions) != 2 {
		t.Fatalf("expected 2 completions, got %v", completions)
	}
	if completions[0] != "gen-1\tsucceeded: notify on deploy failure" {
		t.Errorf("completions[0] = %q", completions[0])
	}

	// Served from cache.
	CompleteGenerationIDs(nil, nil, "")
	if calls != 1 {
		t.Errorf("server called %d times, want 1", calls)
	}

	// Only the first argument is completed.
	if got, _ := CompleteGenerationIDs(nil, []string{"gen-1"}, ""); len(got) != 0 {
		t.Errorf("got completions for second argument: %v", got)
	}
}

func TestCompleteGenerationIDsServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	t.Setenv("RULEGEN_SERVER", url)
	generations = newGenerationCache()

	completions, _ := CompleteGenerationIDs(nil, nil, "")
	if len(completions) != 0 {
		t.Errorf("expected no completions, got %v", completions)
	}
}
