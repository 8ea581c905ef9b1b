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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tombee/rulegen/internal/log"
	"github.com/tombee/rulegen/internal/store"
	"github.com/tombee/rulegen/internal/tracing"
	"github.com/tombee/rulegen/pkg/constrain"
	pkgerrors "github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/generator"
	"github.com/tombee/rulegen/pkg/llm"
)

const (
	maxBatchIntents    = 25
	maxIntentLength    = 4000
	maxSummaryFeedback = 200
)

type generateRequest struct {
	AggregatedContext map[string]any `json:"aggregated_context,omitempty"`
	UserIntent        string         `json:"user_intent"`
	ProviderOverride  string         `json:"provider_override,omitempty"`
}

type generateResponse struct {
	WorkflowRules      map[string]any `json:"workflow_rules"`
	ProviderUsed       string         `json:"provider_used"`
	ModelUsed          string         `json:"model_used"`
	TokensUsed         int            `json:"tokens_used"`
	GenerationTimeMS   int64          `json:"generation_time_ms"`
	Attempts           int            `json:"attempts"`
	ViolationsRepaired []string       `json:"violations_repaired"`
	EstimatedCostUSD   float64        `json:"estimated_cost_usd"`
	RequestID          string         `json:"request_id,omitempty"`
}

// exhaustedResponse is the 422 body for a *constrain.Error.
type exhaustedResponse struct {
	Error          string   `json:"error"`
	Type           string   `json:"type"`
	Attempts       int      `json:"attempts"`
	TokensUsed     int      `json:"tokens_used"`
	ForbiddenNames []string `json:"forbidden_names"`
	SchemaErrors   []string `json:"schema_errors,omitempty"`
	Suggestion     string   `json:"suggestion,omitempty"`
	RequestID      string   `json:"request_id,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req generateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateIntent("user_intent", req.UserIntent); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	logger := s.requestLogger(ctx)
	logger.Info("generating rules", slog.String("intent", log.Truncate(req.UserIntent, 100)))

	gen, err := s.generatorFor(ctx, req.ProviderOverride)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	catalog, err := s.resolveCatalog(ctx, req.AggregatedContext)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, usage := llm.WithUsageTracker(ctx)
	res, err := s.engine(catalog, logger).Generate(ctx, req.UserIntent, gen)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(string(store.KindGenerate), elapsed)

	rec := &store.Record{
		ID:       tracing.FromContext(ctx).String(),
		Kind:     store.KindGenerate,
		Intent:   req.UserIntent,
		Provider: gen.Name(),
		Model:    gen.Model(),
		Duration: elapsed,
	}

	if err != nil {
		fillFailure(rec, err)
		s.record(ctx, rec)
		s.writeGenerateError(w, r, err)
		return
	}

	rec.Status = store.StatusSucceeded
	rec.Attempts = res.Attempt
	rec.TotalTokens = res.TotalTokens
	rec.ForbiddenNames = res.ViolationsRepaired
	s.record(ctx, rec)

	logger.Info("rules generated",
		slog.Int(log.AttemptKey, res.Attempt),
		slog.Int(log.TokensKey, res.TotalTokens),
		slog.Int64(log.DurationKey, elapsed.Milliseconds()))

	writeJSON(w, http.StatusOK, generateResponse{
		WorkflowRules:      res.Document,
		ProviderUsed:       gen.Name(),
		ModelUsed:          gen.Model(),
		TokensUsed:         res.TotalTokens,
		GenerationTimeMS:   elapsed.Milliseconds(),
		Attempts:           res.Attempt,
		ViolationsRepaired: nonNil(res.ViolationsRepaired),
		EstimatedCostUSD:   llm.EstimateCost(gen.Provider(), gen.Model(), usage.Usage()),
		RequestID:          rec.ID,
	})
}

func (s *Server) writeGenerateError(w http.ResponseWriter, r *http.Request, err error) {
	var cge *constrain.Error
	if !errors.As(err, &cge) {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, exhaustedResponse{
		Error:          s.secrets.Masker().Mask(cge.Error()),
		Type:           cge.ErrorType(),
		Attempts:       cge.Attempts,
		TokensUsed:     cge.TotalTokens,
		ForbiddenNames: nonNil(cge.ForbiddenNames),
		SchemaErrors:   cge.SchemaErrors,
		Suggestion:     cge.Suggestion(),
		RequestID:      tracing.FromContext(r.Context()).String(),
	})
}

type batchRequest struct {
	AggregatedContext map[string]any `json:"aggregated_context,omitempty"`
	Intents           []string       `json:"intents"`
}

type batchItem struct {
	Intent             string         `json:"intent"`
	WorkflowRules      map[string]any `json:"workflow_rules,omitempty"`
	Attempts           int            `json:"attempts,omitempty"`
	TokensUsed         int            `json:"tokens_used"`
	ViolationsRepaired []string       `json:"violations_repaired,omitempty"`
	ForbiddenNames     []string       `json:"forbidden_names,omitempty"`
	Error              string         `json:"error,omitempty"`
}

type batchResponse struct {
	Count            int              `json:"count"`
	Failed           int              `json:"failed"`
	Rules            []map[string]any `json:"rules"`
	Items            []batchItem      `json:"items,omitempty"`
	ModelUsed        string           `json:"model_used"`
	TokensUsed       int              `json:"tokens_used"`
	GenerationTimeMS int64            `json:"generation_time_ms"`
	EstimatedCostUSD float64          `json:"estimated_cost_usd"`
}

// handleGenerateBatch runs each intent through the constrained engine in
// turn. With ?raw=true the intents go to the model in one unconstrained call.
func (s *Server) handleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req batchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Intents) == 0 || len(req.Intents) > maxBatchIntents {
		s.writeError(w, r, &pkgerrors.ValidationError{
			Field:   "intents",
			Message: fmt.Sprintf("between 1 and %d intents are required, got %d", maxBatchIntents, len(req.Intents)),
		})
		return
	}
	for i, intent := range req.Intents {
		if err := validateIntent(fmt.Sprintf("intents[%d]", i), intent); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	logger := s.requestLogger(ctx)
	logger.Info("batch generating rules", slog.Int("intents", len(req.Intents)))

	gen, err := s.generatorFor(ctx, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	catalog, err := s.resolveCatalog(ctx, req.AggregatedContext)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, usage := llm.WithUsageTracker(ctx)

	resp := batchResponse{ModelUsed: gen.Model(), Rules: []map[string]any{}}
	if r.URL.Query().Get("raw") == "true" {
		docs, tokens, err := gen.GenerateBatch(ctx, catalog, req.Intents)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Rules = docs
		resp.TokensUsed = tokens
	} else {
		engine := s.engine(catalog, logger)
		for _, intent := range req.Intents {
			if ctx.Err() != nil {
				break
			}
			item := s.generateOne(ctx, engine, gen, intent)
			resp.TokensUsed += item.TokensUsed
			if item.Error != "" {
				resp.Failed++
			} else {
				resp.Rules = append(resp.Rules, item.WorkflowRules)
			}
			resp.Items = append(resp.Items, item)
		}
	}

	elapsed := time.Since(start)
	s.metrics.ObserveDuration(string(store.KindBatch), elapsed)
	resp.Count = len(resp.Rules)
	resp.GenerationTimeMS = elapsed.Milliseconds()
	resp.EstimatedCostUSD = llm.EstimateCost(gen.Provider(), gen.Model(), usage.Usage())

	s.record(ctx, &store.Record{
		ID:          tracing.FromContext(ctx).String(),
		Kind:        store.KindBatch,
		Intent:      strings.Join(req.Intents, "\n"),
		Provider:    gen.Name(),
		Model:       gen.Model(),
		Status:      batchStatus(resp),
		Attempts:    usage.Calls(),
		TotalTokens: resp.TokensUsed,
		Duration:    elapsed,
	})

	logger.Info("batch generated",
		slog.Int("count", resp.Count),
		slog.Int("failed", resp.Failed),
		slog.Int(log.TokensKey, resp.TokensUsed),
		slog.Int64(log.DurationKey, elapsed.Milliseconds()))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) generateOne(ctx context.Context, engine *constrain.Engine, gen *generator.LLMGenerator, intent string) batchItem {
	item := batchItem{Intent: intent}
	res, err := engine.Generate(ctx, intent, gen)
	if err != nil {
		var cge *constrain.Error
		if errors.As(err, &cge) {
			item.Attempts = cge.Attempts
			item.TokensUsed = cge.TotalTokens
			item.ForbiddenNames = cge.ForbiddenNames
		}
		item.Error = s.secrets.Masker().Mask(err.Error())
		return item
	}
	item.WorkflowRules = res.Document
	item.Attempts = res.Attempt
	item.TokensUsed = res.TotalTokens
	item.ViolationsRepaired = res.ViolationsRepaired
	return item
}

func batchStatus(resp batchResponse) store.Status {
	switch {
	case resp.Count == 0:
		return store.StatusExhausted
	case resp.Failed > 0:
		return store.StatusFailed
	default:
		return store.StatusSucceeded
	}
}

type refineRequest struct {
	CurrentRules      map[string]any `json:"current_rules"`
	Feedback          string         `json:"feedback"`
	AggregatedContext map[string]any `json:"aggregated_context,omitempty"`
}

type refineResponse struct {
	RefinedRules   map[string]any        `json:"refined_rules"`
	TokensUsed     int                   `json:"tokens_used"`
	ChangesSummary string                `json:"changes_summary"`
	Violations     []constrain.Violation `json:"violations"`
}

type schemaErrorResponse struct {
	Error        string   `json:"error"`
	SchemaErrors []string `json:"schema_errors"`
}

// handleRefine improves existing rules. Both the input and the refined
// output must be structurally valid; catalog violations in the output are
// reported but not repaired.
func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req refineRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if problems := constrain.ValidateSchema(req.CurrentRules); len(problems) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, schemaErrorResponse{
			Error:        "current_rules is not a valid rules document",
			SchemaErrors: problems,
		})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	logger := s.requestLogger(ctx)
	logger.Info("refining rules", slog.String("feedback", log.Truncate(req.Feedback, 100)))

	gen, err := s.generatorFor(ctx, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	catalog, err := s.resolveCatalog(ctx, req.AggregatedContext)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	refined, tokens, err := gen.Refine(ctx, req.CurrentRules, req.Feedback, catalog)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(string(store.KindRefine), elapsed)
	rec := &store.Record{
		ID:          tracing.FromContext(ctx).String(),
		Kind:        store.KindRefine,
		Intent:      req.Feedback,
		Provider:    gen.Name(),
		Model:       gen.Model(),
		Attempts:    1,
		TotalTokens: tokens,
		Duration:    elapsed,
	}
	if err != nil {
		fillFailure(rec, err)
		s.record(ctx, rec)
		s.writeError(w, r, err)
		return
	}
	if problems := constrain.ValidateSchema(refined); len(problems) > 0 {
		rec.Status = store.StatusFailed
		rec.Error = strings.Join(problems, "; ")
		s.record(ctx, rec)
		writeJSON(w, http.StatusUnprocessableEntity, schemaErrorResponse{
			Error:        "refined rules are not a valid rules document",
			SchemaErrors: problems,
		})
		return
	}

	violations := constrain.ValidateAllowlist(refined, constrain.BuildAllowlist(catalog))
	rec.Status = store.StatusSucceeded
	for _, v := range violations {
		rec.ForbiddenNames = append(rec.ForbiddenNames, v.Value)
	}
	s.record(ctx, rec)

	writeJSON(w, http.StatusOK, refineResponse{
		RefinedRules:   refined,
		TokensUsed:     tokens,
		ChangesSummary: "Rules refined based on feedback: " + log.Truncate(req.Feedback, maxSummaryFeedback),
		Violations:     nonNil(violations),
	})
}

type validateRequest struct {
	Rules             any            `json:"rules"`
	AggregatedContext map[string]any `json:"aggregated_context,omitempty"`
}

type validateResponse struct {
	Valid          bool                  `json:"valid"`
	SchemaErrors   []string              `json:"schema_errors"`
	Violations     []constrain.Violation `json:"violations"`
	CatalogChecked bool                  `json:"catalog_checked"`
}

// handleValidate runs both validators without calling a model. Catalog
// checks are skipped when no catalog is available.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := validateResponse{
		SchemaErrors: nonNil(constrain.ValidateSchema(req.Rules)),
		Violations:   []constrain.Violation{},
	}
	if doc, ok := req.Rules.(map[string]any); ok && len(resp.SchemaErrors) == 0 {
		catalog, err := s.resolveCatalog(r.Context(), req.AggregatedContext)
		if err != nil {
			s.requestLogger(r.Context()).Warn("validating without catalog", log.Error(err))
		} else {
			allow := constrain.BuildAllowlist(catalog)
			resp.CatalogChecked = allow.Active()
			resp.Violations = nonNil(constrain.ValidateAllowlist(doc, allow))
		}
	}
	resp.Valid = len(resp.SchemaErrors) == 0 && len(resp.Violations) == 0
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) engine(catalog map[string]any, logger *slog.Logger) *constrain.Engine {
	opts := []constrain.Option{
		constrain.WithLogger(logger),
		constrain.WithObserver(s.metrics),
		constrain.WithSuppressionHints(s.llmCfg.Load().SuppressionHints),
	}
	if s.tracing != nil {
		opts = append(opts, constrain.WithTracer(s.tracing.Tracer("github.com/tombee/rulegen/pkg/constrain")))
	}
	return constrain.New(catalog, opts...)
}

// resolveCatalog returns the request's catalog, or the cached upstream one
// when the request carries none or lacks condition types.
func (s *Server) resolveCatalog(ctx context.Context, provided map[string]any) (map[string]any, error) {
	if len(provided) > 0 && provided["condition_types"] != nil {
		return provided, nil
	}
	if s.catalog == nil {
		if len(provided) > 0 {
			return provided, nil
		}
		return nil, &pkgerrors.ValidationError{
			Field:      "aggregated_context",
			Message:    "no capability catalog supplied and no upstream configured",
			Suggestion: "pass aggregated_context or set upstream.base_url",
		}
	}

	catalog, err := s.catalog.Get(ctx)
	if err != nil {
		if len(provided) > 0 {
			s.requestLogger(ctx).Warn("catalog fetch failed, using request context", log.Error(err))
			return provided, nil
		}
		return nil, fmt.Errorf("capability catalog unavailable: %w", err)
	}
	return catalog, nil
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if t := s.cfg.Server.RequestTimeout; t > 0 {
		return context.WithTimeout(r.Context(), t)
	}
	return context.WithCancel(r.Context())
}

func (s *Server) requestLogger(ctx context.Context) *slog.Logger {
	return log.WithRequestID(s.logger, tracing.FromContext(ctx).String())
}

// record persists rec. Failures are logged; they never fail the request.
func (s *Server) record(ctx context.Context, rec *store.Record) {
	if err := s.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		s.requestLogger(ctx).Error("failed to record generation", log.Error(err))
	}
}

func fillFailure(rec *store.Record, err error) {
	rec.Status = store.StatusFailed
	rec.Error = err.Error()
	var cge *constrain.Error
	if errors.As(err, &cge) {
		rec.Status = store.StatusExhausted
		rec.Attempts = cge.Attempts
		rec.TotalTokens = cge.TotalTokens
		rec.ForbiddenNames = cge.ForbiddenNames
	}
}

func validateIntent(field, intent string) error {
	switch {
	case strings.TrimSpace(intent) == "":
		return &pkgerrors.ValidationError{Field: field, Message: "intent is required"}
	case len(intent) > maxIntentLength:
		return &pkgerrors.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("intent exceeds %d characters", maxIntentLength),
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
