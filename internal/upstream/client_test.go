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

package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, query string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", UserID: "user-1", CatalogQuery: query}, nil)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchCatalog(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CatalogPath, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"connectors":      []any{map[string]any{"id": "email", "functions": []any{map[string]any{"id": "send_email"}}}},
			"condition_types": []any{map[string]any{"type": "temperature_above"}},
		})
	}, "")

	catalog, err := c.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Contains(t, catalog, "connectors")
	assert.Contains(t, catalog, "condition_types")
}

func TestFetchCatalog_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"connectors": []any{}},
		})
	}, ".data")

	catalog, err := c.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"connectors": []any{}}, catalog)
}

func TestFetchCatalog_NotAnObject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{1, 2})
	}, "")

	_, err := c.FetchCatalog(context.Background())
	var ve *pkgerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "catalog", ve.Field)
}

func TestFetchCatalog_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusInternalServerError)
	}, "")

	_, err := c.FetchCatalog(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.True(t, se.IsRetryable())
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestFetchLLMConfig_API(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, LLMConfigPath, r.URL.Path)
		assert.Equal(t, "user-1", r.Header.Get(HeaderUserID))
		writeJSON(w, http.StatusOK, map[string]any{
			"provider":  "OpenAI",
			"model":     "gpt-4o",
			"maxTokens": 2048,
			"apiConfig": map[string]any{"apiKey": "sk-test", "apiUrl": "https://proxy.internal/v1"},
		})
	}, "")

	s, err := c.FetchLLMConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "openai", s.Provider)
	assert.Equal(t, "gpt-4o", s.Model)
	assert.Equal(t, 0.3, s.Temperature)
	assert.Equal(t, 2048, s.MaxTokens)
	assert.Equal(t, "sk-test", s.APIKey)
	assert.Equal(t, "https://proxy.internal/v1", s.APIURL)
	assert.False(t, s.Local())
}

func TestFetchLLMConfig_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, "")

	_, err := c.FetchLLMConfig(context.Background())
	var nf *pkgerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "llm config", nf.Resource)
	assert.Contains(t, nf.Hint, "X-User-ID")
}

func TestNormalize(t *testing.T) {
	temp := 0.7
	window := 8192

	tests := []struct {
		name string
		raw  rawLLMConfig
		want LLMSettings
	}{
		{
			name: "defaults",
			raw:  rawLLMConfig{Provider: "Anthropic", Model: "claude-sonnet-4-5"},
			want: LLMSettings{Provider: "anthropic", Model: "claude-sonnet-4-5", Temperature: 0.3, MaxTokens: 4096},
		},
		{
			name: "explicit temperature",
			raw:  rawLLMConfig{Provider: "anthropic", Temperature: &temp},
			want: LLMSettings{Provider: "anthropic", Temperature: 0.7, MaxTokens: 4096},
		},
		{
			name: "local defaults",
			raw:  rawLLMConfig{Provider: "ollama_local", Model: "llama3"},
			want: LLMSettings{
				Provider: "ollama_local", Model: "llama3", Temperature: 0.3, MaxTokens: 4096,
				APIURL: "http://localhost:11434", ContextWindow: 4096,
			},
		},
		{
			name: "local config",
			raw: func() rawLLMConfig {
				r := rawLLMConfig{Provider: "llama_cpp"}
				r.LocalConfig = &struct {
					APIURL        string `json:"apiUrl"`
					GPUEnabled    bool   `json:"gpuEnabled"`
					ContextWindow *int   `json:"contextWindow"`
				}{APIURL: "http://gpu-box:8080", GPUEnabled: true, ContextWindow: &window}
				return r
			}(),
			want: LLMSettings{
				Provider: "llama_cpp", Temperature: 0.3, MaxTokens: 4096,
				APIURL: "http://gpu-box:8080", GPUEnabled: true, ContextWindow: 8192,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, &tt.want, tt.raw.normalize())
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil)
	var ce *pkgerrors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "upstream.base_url", ce.Key)

	_, err = New(Config{BaseURL: "http://x", CatalogQuery: ".["}, nil)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "upstream.catalog_query", ce.Key)
}
