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

package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		id    RequestID
		valid bool
	}{
		{"uuid", NewRequestID(), true},
		{"upstream style", "req_01HX.abc:7", true},
		{"empty", "", false},
		{"spaces", "abc def", false},
		{"header injection", "abc\r\nX-Evil: 1", false},
		{"too long", RequestID(strings.Repeat("a", 129)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	if id := FromContext(context.Background()); id != "" {
		t.Errorf("empty context returned %q", id)
	}
	ctx := ToContext(context.Background(), "abc")
	if id := FromContext(ctx); id != "abc" {
		t.Errorf("FromContext() = %q, want abc", id)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen RequestID
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	t.Run("caller supplied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(HeaderRequestID, "upstream-42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen != "upstream-42" {
			t.Errorf("context ID = %q", seen)
		}
		if got := rec.Header().Get(HeaderRequestID); got != "upstream-42" {
			t.Errorf("response header = %q", got)
		}
	})

	t.Run("correlation header fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(HeaderCorrelationID, "corr-1")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if seen != "corr-1" {
			t.Errorf("context ID = %q", seen)
		}
	})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if !seen.IsValid() || len(seen) != 36 {
			t.Errorf("expected generated UUID, got %q", seen)
		}
		if rec.Header().Get(HeaderRequestID) != seen.String() {
			t.Error("response header should echo generated ID")
		}
	})

	t.Run("malformed replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(HeaderRequestID, "bad id with spaces")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if seen == "bad id with spaces" {
			t.Error("malformed ID should be replaced")
		}
	})
}

func TestInjectIntoRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://upstream/catalog", nil)
	InjectIntoRequest(context.Background(), req)
	if req.Header.Get(HeaderRequestID) != "" {
		t.Error("no ID in context should set no header")
	}

	InjectIntoRequest(ToContext(context.Background(), "abc"), req)
	if got := req.Header.Get(HeaderRequestID); got != "abc" {
		t.Errorf("header = %q, want abc", got)
	}
}
