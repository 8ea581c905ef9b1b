package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/llm"
)

func TestOllama_Complete(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{
				"model": "llama3.1",
				"message": {"role": "assistant", "content": "{\"rules\":[]}"},
				"done": true,
				"prompt_eval_count": 80,
				"eval_count": 20
			}`))
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p, err := NewOllamaProvider(llm.LocalCredentials{BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewOllamaProvider: %v", err)
	}

	temp := 0.3
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.MessageRoleUser, Content: "go"}},
		JSONMode:    true,
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got.Format != "json" || got.Stream {
		t.Errorf("format/stream = %q/%v", got.Format, got.Stream)
	}
	if got.Model != defaultOllamaModel {
		t.Errorf("model = %q", got.Model)
	}
	if got.Options == nil || got.Options.Temperature == nil || *got.Options.Temperature != 0.3 {
		t.Errorf("options = %+v", got.Options)
	}
	if resp.Usage.TotalTokens != 100 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}

	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestOllama_ModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'mistral' not found"}`))
	}))
	defer server.Close()

	p, _ := NewOllamaProvider(llm.LocalCredentials{BaseURL: server.URL, Model: "mistral"})
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "go"}},
	})

	var perr *pkgerrors.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Message != "model 'mistral' not found" {
		t.Errorf("Message = %q", perr.Message)
	}
	if perr.IsRetryable() {
		t.Error("404 should not be retryable")
	}
}

func TestOllama_Unreachable(t *testing.T) {
	p, _ := NewOllamaProvider(llm.LocalCredentials{BaseURL: "http://127.0.0.1:1"})
	err := p.HealthCheck(context.Background())

	var perr *pkgerrors.ProviderError
	if !errors.As(err, &perr) || !perr.IsRetryable() {
		t.Errorf("expected retryable ProviderError, got %v", err)
	}
}
