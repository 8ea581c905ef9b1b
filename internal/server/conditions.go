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
	"errors"
	"net/http"
	"strings"

	"github.com/tombee/rulegen/internal/condition"
	"github.com/tombee/rulegen/internal/log"
	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

type evaluateRequest struct {
	Condition string         `json:"condition"`
	Variables map[string]any `json:"variables"`
}

type evaluateResponse struct {
	Result       bool   `json:"result"`
	ProviderUsed string `json:"provider_used"`
}

// handleEvaluateCondition decides a condition locally when every variable
// it references is supplied, and asks the model otherwise.
func (s *Server) handleEvaluateCondition(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Condition) == "" {
		s.writeError(w, r, &pkgerrors.ValidationError{Field: "condition", Message: "condition is required"})
		return
	}

	result, err := s.evaluator.Evaluate(req.Condition, req.Variables)
	if err == nil {
		writeJSON(w, http.StatusOK, evaluateResponse{Result: result, ProviderUsed: "local"})
		return
	}
	if !errors.Is(err, condition.ErrUnresolved) {
		s.requestLogger(r.Context()).Debug("local evaluation failed", log.Error(err))
	}

	gen := s.active.Load()
	if gen == nil {
		s.writeError(w, r, ErrNoProvider)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	result, err = gen.EvaluateCondition(ctx, req.Condition, req.Variables)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluateResponse{Result: result, ProviderUsed: gen.Name()})
}
