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
	"regexp"

	"github.com/google/uuid"
)

// RequestID identifies a single inbound request across logs, stored
// generation records and outbound upstream calls.
type RequestID string

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// HTTP header names for request ID propagation.
const (
	// HeaderRequestID is the primary header.
	HeaderRequestID = "X-Request-ID"
	// HeaderCorrelationID is accepted from callers that use it instead.
	HeaderCorrelationID = "X-Correlation-ID"
)

// Caller-supplied IDs are limited to a conservative charset so they are
// safe to echo into headers and logs.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// NewRequestID generates a new request ID.
func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}

// String returns the string form of the ID.
func (id RequestID) String() string {
	return string(id)
}

// IsValid reports whether id is non-empty and uses the allowed charset.
func (id RequestID) IsValid() bool {
	return requestIDPattern.MatchString(string(id))
}

// ToContext stores the request ID in ctx.
func ToContext(ctx context.Context, id RequestID) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// FromContext returns the request ID stored in ctx, or "".
func FromContext(ctx context.Context) RequestID {
	if id, ok := ctx.Value(requestIDKey).(RequestID); ok {
		return id
	}
	return ""
}

// ExtractFromRequest reads X-Request-ID, falling back to X-Correlation-ID.
func ExtractFromRequest(r *http.Request) (RequestID, bool) {
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return RequestID(id), true
	}
	if id := r.Header.Get(HeaderCorrelationID); id != "" {
		return RequestID(id), true
	}
	return "", false
}

// InjectIntoRequest sets X-Request-ID on an outbound request when ctx
// carries an ID.
func InjectIntoRequest(ctx context.Context, req *http.Request) {
	if id := FromContext(ctx); id != "" {
		req.Header.Set(HeaderRequestID, id.String())
	}
}

// RequestIDMiddleware assigns every request an ID and echoes it in the
// X-Request-ID response header. Malformed caller IDs are replaced rather
// than rejected.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, found := ExtractFromRequest(r)
		if !found || !id.IsValid() {
			id = NewRequestID()
		}
		w.Header().Set(HeaderRequestID, id.String())
		next.ServeHTTP(w, r.WithContext(ToContext(r.Context(), id)))
	})
}
