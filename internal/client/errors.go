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

package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tombee/rulegen/internal/tracing"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int      `json:"-"`
	Message    string   `json:"error"`
	Type       string   `json:"type"`
	Hint       string   `json:"suggestion"`
	RequestID  string   `json:"request_id"`
	RetryAfter string   `json:"-"`
	Attempts   int      `json:"attempts"`
	TokensUsed int      `json:"tokens_used"`
	Forbidden  []string `json:"forbidden_names"`
	Schema     []string `json:"schema_errors"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, msg)
}

// ErrorType implements errors.ErrorClassifier.
func (e *APIError) ErrorType() string {
	if e.Type != "" {
		return e.Type
	}
	return "api"
}

// IsRetryable implements errors.ErrorClassifier.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsUserVisible implements errors.UserVisibleError.
func (e *APIError) IsUserVisible() bool { return true }

// UserMessage implements errors.UserVisibleError.
func (e *APIError) UserMessage() string { return e.Message }

// Suggestion implements errors.UserVisibleError.
func (e *APIError) Suggestion() string {
	switch {
	case e.Hint != "":
		return e.Hint
	case e.StatusCode == http.StatusServiceUnavailable:
		return "check the server's LLM configuration, then run 'rulegen refresh'"
	case e.StatusCode == http.StatusTooManyRequests:
		return "wait a moment and retry"
	}
	return ""
}

// Exhausted reports whether the server gave up after repair attempts.
func (e *APIError) Exhausted() bool {
	return e.StatusCode == http.StatusUnprocessableEntity && e.Attempts > 0
}

func decodeAPIError(resp *http.Response, body []byte) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RetryAfter: resp.Header.Get("Retry-After"),
		RequestID:  resp.Header.Get(tracing.HeaderRequestID),
	}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
