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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/rulegen/internal/log"
	"github.com/tombee/rulegen/internal/tracing"
)

// routes registers every endpoint and applies middleware, outermost first:
// request ID, trace extraction, request logging.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /providers", s.handleProviders)

	mux.Handle("POST /api/rules/generate", s.limited(http.HandlerFunc(s.handleGenerate)))
	mux.Handle("POST /api/rules/generate-batch", s.limited(http.HandlerFunc(s.handleGenerateBatch)))
	mux.Handle("POST /api/rules/refine", s.limited(http.HandlerFunc(s.handleRefine)))
	mux.HandleFunc("POST /api/rules/validate", s.handleValidate)
	mux.Handle("POST /api/conditions/evaluate", s.limited(http.HandlerFunc(s.handleEvaluateCondition)))

	mux.HandleFunc("GET /api/generations", s.handleListGenerations)
	mux.HandleFunc("GET /api/generations/{id}", s.handleGetGeneration)

	mux.HandleFunc("POST /cache/invalidate", s.handleCacheInvalidate)
	mux.HandleFunc("GET /cache/status", s.handleCacheStatus)
	mux.HandleFunc("POST /config/refresh", s.handleConfigRefresh)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	var h http.Handler = mux
	h = log.Middleware(s.logger, "/health", "/metrics")(h)
	h = tracing.HTTPMiddleware(h)
	h = tracing.RequestIDMiddleware(h)
	return h
}

// limited rejects requests over the configured rate with 429.
func (s *Server) limited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.metrics.RateLimited()
			w.Header().Set("Retry-After", "1")
			writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
