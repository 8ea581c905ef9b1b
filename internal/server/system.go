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
	"net/http"
	"strconv"
	"time"

	"github.com/tombee/rulegen/internal/log"
	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

var endpoints = map[string]string{
	"generate":           "POST /api/rules/generate",
	"generate_batch":     "POST /api/rules/generate-batch",
	"refine":             "POST /api/rules/refine",
	"validate":           "POST /api/rules/validate",
	"evaluate_condition": "POST /api/conditions/evaluate",
	"generations":        "GET /api/generations",
	"health":             "GET /health",
	"providers":          "GET /providers",
	"cache_status":       "GET /cache/status",
	"cache_invalidate":   "POST /cache/invalidate",
	"config_refresh":     "POST /config/refresh",
	"metrics":            "GET /metrics",
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	provider, model := s.activeNames()
	writeJSON(w, http.StatusOK, map[string]any{
		"service":      ServiceName,
		"version":      s.version,
		"llm_provider": provider,
		"llm_model":    model,
		"endpoints":    endpoints,
	})
}

type healthResponse struct {
	Status                 string   `json:"status"`
	Provider               string   `json:"provider"`
	Model                  string   `json:"model"`
	ContextCacheAgeMinutes *float64 `json:"context_cache_age_minutes"`
	Uptime                 string   `json:"uptime"`
}

// handleHealth reports liveness. A missing provider is reported but does
// not make the service unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	provider, model := s.activeNames()
	resp := healthResponse{
		Status:   "healthy",
		Provider: provider,
		Model:    model,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}
	if s.catalog != nil {
		if st := s.catalog.Status(); st.HasValue {
			age := st.Age.Minutes()
			resp.ContextCacheAgeMinutes = &age
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	current, _ := s.activeNames()
	writeJSON(w, http.StatusOK, map[string]any{
		"available_providers": s.registry.ListFactories(),
		"current_provider":    current,
		"active":              s.registry.ListActive(),
	})
}

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			s.writeError(w, r, &pkgerrors.ValidationError{
				Field:   "limit",
				Message: "limit must be an integer between 1 and " + strconv.Itoa(maxListLimit),
			})
			return
		}
		limit = n
	}

	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(records),
		"generations": records,
	})
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeMessage(w, http.StatusServiceUnavailable, "no upstream configured")
		return
	}
	s.catalog.Invalidate()
	s.requestLogger(r.Context()).Info("catalog cache invalidated")
	writeJSON(w, http.StatusOK, map[string]string{"status": "context cache invalidated"})
}

type cacheStatusResponse struct {
	IsValid    bool     `json:"is_valid"`
	AgeMinutes *float64 `json:"age_minutes"`
	TTLMinutes float64  `json:"ttl_minutes"`
	HasContext bool     `json:"has_context"`
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	resp := cacheStatusResponse{TTLMinutes: s.cfg.Cache.CatalogTTL.Minutes()}
	if s.catalog != nil {
		st := s.catalog.Status()
		resp.IsValid = st.Valid
		resp.HasContext = st.HasValue
		if st.HasValue {
			age := st.Age.Minutes()
			resp.AgeMinutes = &age
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConfigRefresh refetches provider settings and swaps the active
// generator. The previous generator keeps serving if the refresh fails.
func (s *Server) handleConfigRefresh(w http.ResponseWriter, r *http.Request) {
	gen, err := s.ConfigureProvider(r.Context(), true)
	if err != nil {
		s.requestLogger(r.Context()).Error("config refresh failed", log.Error(err))
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "LLM config refreshed",
		"provider": gen.Name(),
		"model":    gen.Model(),
	})
}

func (s *Server) activeNames() (provider, model string) {
	if gen := s.active.Load(); gen != nil {
		return gen.Name(), gen.Model()
	}
	return "", ""
}
