package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tombee/rulegen/internal/tracing"
)

func TestClient_SetsIdentityHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "rulegen-test/1.0"
	cfg.Headers = map[string]string{"Authorization": "Bearer abc"}
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := tracing.ToContext(context.Background(), "req-123")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if ua := got.Get("User-Agent"); ua != "rulegen-test/1.0" {
		t.Errorf("User-Agent = %q", ua)
	}
	if auth := got.Get("Authorization"); auth != "Bearer abc" {
		t.Errorf("Authorization = %q", auth)
	}
	if id := got.Get(tracing.HeaderRequestID); id != "req-123" {
		t.Errorf("%s = %q", tracing.HeaderRequestID, id)
	}
	if req.Header.Get("User-Agent") != "" {
		t.Error("caller's request must not be mutated")
	}
}

func TestClient_RequestHeadersWin(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Headers = map[string]string{"Authorization": "Bearer default"}
	client, _ := New(cfg)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("Authorization", "Bearer explicit")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if got != "Bearer explicit" {
		t.Errorf("Authorization = %q, want explicit value", got)
	}
}
