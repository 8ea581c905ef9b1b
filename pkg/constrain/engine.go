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

package constrain

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxAttempts is the number of generate-and-validate cycles per request.
const MaxAttempts = 3

// Keys the Engine adds to the context it passes to a Generator.
const (
	ContextKeyPreamble    = "_constraint_preamble"
	ContextKeyAttempt     = "_attempt"
	ContextKeyMaxAttempts = "_max_attempts"
	ContextKeySuppress    = "_suppress_terms"
)

// MetadataKey is the document key holding constraint metadata on success.
const MetadataKey = "_constrained"

// Attempt outcomes reported to an Observer.
const (
	OutcomeSuccess          = "success"
	OutcomeProviderError    = "provider_error"
	OutcomeSchemaInvalid    = "schema_invalid"
	OutcomeCatalogViolation = "catalog_violation"
)

const tracerName = "github.com/tombee/rulegen/pkg/constrain"

// Generator produces a parsed rules document for an intent. It returns the
// tokens consumed by the call.
type Generator interface {
	Generate(ctx context.Context, catalog map[string]any, intent string) (map[string]any, int, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, catalog map[string]any, intent string) (map[string]any, int, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, catalog map[string]any, intent string) (map[string]any, int, error) {
	return f(ctx, catalog, intent)
}

// Observer receives per-attempt and per-request outcomes.
type Observer interface {
	ObserveAttempt(attempt int, outcome string, tokens int)
	ObserveViolations(violations []Violation)
	ObserveResult(success bool, attempts int, totalTokens int)
}

// Result is a validated document and its constraint metadata.
type Result struct {
	Document           map[string]any `json:"document"`
	Attempt            int            `json:"attempt"`
	TotalTokens        int            `json:"total_tokens"`
	ViolationsRepaired []string       `json:"violations_repaired"`
}

// Engine drives constrained generation against one catalog snapshot.
// It holds no mutable state and may be reused across goroutines.
type Engine struct {
	catalog   map[string]any
	allowlist *Allowlist
	logger    *slog.Logger
	observer  Observer
	tracer    trace.Tracer
	suppress  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers an Observer, typically a metrics collector.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithTracer sets the tracer used for request and attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithSuppressionHints passes forbidden names to the generator under
// ContextKeySuppress so providers with token weighting can use them.
func WithSuppressionHints(enabled bool) Option {
	return func(e *Engine) { e.suppress = enabled }
}

// New builds the allowlist for catalog and returns an Engine.
func New(catalog map[string]any, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.allowlist = BuildAllowlist(catalog)
	e.logger = e.logger.With(slog.String("component", "constrain"))

	e.logger.Debug("allowlist built",
		"connectors", len(e.allowlist.connectorIDs),
		"action_types", len(e.allowlist.actionTypes),
		"trigger_sources", len(e.allowlist.triggerSources))
	return e
}

// Allowlist returns the allowlist derived from the catalog.
func (e *Engine) Allowlist() *Allowlist {
	return e.allowlist
}

// Generate runs up to MaxAttempts generate-and-validate cycles and returns the
// first document that passes both structural and catalog validation. Any
// failure is reported as *Error.
func (e *Engine) Generate(ctx context.Context, intent string, gen Generator) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "constrain.generate",
		trace.WithAttributes(attribute.Int("constrain.max_attempts", MaxAttempts)))
	defer span.End()

	forbidden := make(map[string]struct{})
	totalTokens := 0
	var (
		lastErr    error
		lastSchema []string
		attempts   int
	)

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(span, &Error{
				Attempts:       attempts,
				TotalTokens:    totalTokens,
				ForbiddenNames: sortedKeys(forbidden),
				Cause:          err,
			})
		}
		attempts = attempt
		lastErr, lastSchema = nil, nil

		names := sortedKeys(forbidden)
		log := e.logger.With("attempt", attempt, "max_attempts", MaxAttempts)
		log.Info("generation attempt", "forbidden", len(names))

		actx, aspan := e.tracer.Start(ctx, "constrain.attempt",
			trace.WithAttributes(
				attribute.Int("constrain.attempt", attempt),
				attribute.StringSlice("constrain.forbidden", names),
			))

		doc, tokens, err := gen.Generate(actx, e.augment(names, attempt), intent)
		totalTokens += tokens
		aspan.SetAttributes(attribute.Int("constrain.tokens", tokens))

		if err != nil {
			aspan.RecordError(err)
			aspan.SetStatus(codes.Error, OutcomeProviderError)
			aspan.End()
			e.observeAttempt(attempt, OutcomeProviderError, tokens)
			log.Error("generator failed", "error", err)

			lastErr = err
			if isContextErr(err) && ctx.Err() != nil {
				break
			}
			if isInputErr(err) {
				log.Warn("input rejected by generator, not retrying")
				break
			}
			continue
		}

		if problems := ValidateSchema(doc); len(problems) > 0 {
			aspan.SetStatus(codes.Error, OutcomeSchemaInvalid)
			aspan.End()
			e.observeAttempt(attempt, OutcomeSchemaInvalid, tokens)
			log.Warn("structurally invalid output", "problems", problems)

			lastSchema = problems
			continue
		}

		violations := ValidateAllowlist(doc, e.allowlist)
		if len(violations) == 0 {
			repaired := sortedKeys(forbidden)
			doc[MetadataKey] = map[string]any{
				"attempt":             attempt,
				"total_tokens":        totalTokens,
				"violations_repaired": repaired,
			}
			aspan.End()
			e.observeAttempt(attempt, OutcomeSuccess, tokens)
			if e.observer != nil {
				e.observer.ObserveResult(true, attempt, totalTokens)
			}
			span.SetAttributes(
				attribute.Int("constrain.attempts", attempt),
				attribute.Int("constrain.total_tokens", totalTokens))
			log.Info("valid output", "tokens", tokens, "total_tokens", totalTokens)

			return &Result{
				Document:           doc,
				Attempt:            attempt,
				TotalTokens:        totalTokens,
				ViolationsRepaired: repaired,
			}, nil
		}

		for _, v := range violations {
			forbidden[v.Value] = struct{}{}
		}
		aspan.SetAttributes(attribute.Int("constrain.violations", len(violations)))
		aspan.SetStatus(codes.Error, OutcomeCatalogViolation)
		aspan.End()
		e.observeAttempt(attempt, OutcomeCatalogViolation, tokens)
		if e.observer != nil {
			e.observer.ObserveViolations(violations)
		}
		log.Warn("catalog violations", "count", len(violations), "values", violationValues(violations))
	}

	return nil, e.fail(span, &Error{
		Attempts:       attempts,
		TotalTokens:    totalTokens,
		ForbiddenNames: sortedKeys(forbidden),
		SchemaErrors:   lastSchema,
		Cause:          lastErr,
	})
}

// augment returns a shallow copy of the catalog with the constraint keys added.
func (e *Engine) augment(forbidden []string, attempt int) map[string]any {
	out := make(map[string]any, len(e.catalog)+4)
	for k, v := range e.catalog {
		out[k] = v
	}
	out[ContextKeyPreamble] = RenderPreamble(e.allowlist, forbidden, attempt)
	out[ContextKeyAttempt] = attempt
	out[ContextKeyMaxAttempts] = MaxAttempts
	if e.suppress && len(forbidden) > 0 {
		out[ContextKeySuppress] = forbidden
	}
	return out
}

func (e *Engine) fail(span trace.Span, err *Error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.ErrorType())
	span.SetAttributes(
		attribute.Int("constrain.attempts", err.Attempts),
		attribute.Int("constrain.total_tokens", err.TotalTokens))
	if e.observer != nil {
		e.observer.ObserveResult(false, err.Attempts, err.TotalTokens)
	}
	e.logger.Error("constrained generation failed",
		"attempts", err.Attempts,
		"total_tokens", err.TotalTokens,
		"forbidden", err.ForbiddenNames)
	return err
}

func (e *Engine) observeAttempt(attempt int, outcome string, tokens int) {
	if e.observer != nil {
		e.observer.ObserveAttempt(attempt, outcome, tokens)
	}
}

func violationValues(vs []Violation) []string {
	seen := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		seen[v.Value] = struct{}{}
	}
	return sortedKeys(seen)
}
