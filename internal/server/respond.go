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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tombee/rulegen/internal/log"
	"github.com/tombee/rulegen/internal/tracing"
	"github.com/tombee/rulegen/internal/upstream"
	"github.com/tombee/rulegen/pkg/constrain"
	pkgerrors "github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/llm"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error      string `json:"error"`
	Type       string `json:"type,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", log.Error(err))
	}
}

// writeError answers with the status err maps to. Known secrets are masked
// from the message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	resp := errorResponse{
		Error:     s.secrets.Masker().Mask(err.Error()),
		Type:      pkgerrors.Classify(err),
		RequestID: tracing.FromContext(r.Context()).String(),
	}
	var uv pkgerrors.UserVisibleError
	if errors.As(err, &uv) && uv.IsUserVisible() {
		resp.Suggestion = uv.Suggestion()
	}
	var nf *pkgerrors.NotFoundError
	if errors.As(err, &nf) && nf.Hint != "" {
		resp.Suggestion = nf.Hint
	}
	var pe *pkgerrors.ProviderError
	if errors.As(err, &pe) && pe.Suggestion != "" {
		resp.Suggestion = pe.Suggestion
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "10")
	}
	writeJSON(w, status, resp)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorStatus maps an error to an HTTP status.
func errorStatus(err error) int {
	var (
		ve  *pkgerrors.ValidationError
		nf  *pkgerrors.NotFoundError
		pe  *pkgerrors.ProviderError
		ce  *pkgerrors.ConfigError
		te  *pkgerrors.TimeoutError
		cge *constrain.Error
		mbe *http.MaxBytesError
		use *upstream.StatusError
	)
	switch {
	case errors.As(err, &cge):
		return http.StatusUnprocessableEntity
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrFactoryNotFound):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &te):
		return http.StatusGatewayTimeout
	case errors.As(err, &pe), errors.As(err, &use):
		return http.StatusBadGateway
	case errors.As(err, &ce):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v, bounded by the configured size.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return &pkgerrors.ValidationError{Field: "body", Message: "request body is empty"}
		}
		return &pkgerrors.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}
