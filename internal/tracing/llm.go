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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/llm"
)

const llmScope = "github.com/tombee/rulegen/pkg/llm"

// TracedProvider wraps an LLM provider with a span and meter instruments
// around every Complete call.
type TracedProvider struct {
	provider llm.Provider
	tracer   trace.Tracer

	requests metric.Int64Counter
	tokens   metric.Int64Counter
	latency  metric.Float64Histogram
}

// WrapProvider instruments provider using p's tracer and meter.
func WrapProvider(provider llm.Provider, p *Provider) (*TracedProvider, error) {
	return wrapProvider(provider, p.Tracer(llmScope), p.Meter(llmScope))
}

func wrapProvider(provider llm.Provider, tracer trace.Tracer, meter metric.Meter) (*TracedProvider, error) {
	t := &TracedProvider{provider: provider, tracer: tracer}

	var err error
	if t.requests, err = meter.Int64Counter("rulegen_llm_requests_total",
		metric.WithDescription("LLM completion requests by provider and outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if t.tokens, err = meter.Int64Counter("rulegen_llm_tokens_total",
		metric.WithDescription("Tokens consumed by LLM completions"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, err
	}
	if t.latency, err = meter.Float64Histogram("rulegen_llm_latency_seconds",
		metric.WithDescription("LLM completion latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return t, nil
}

// Name returns the underlying provider's name.
func (t *TracedProvider) Name() string {
	return t.provider.Name()
}

// Capabilities returns the underlying provider's capabilities.
func (t *TracedProvider) Capabilities() llm.Capabilities {
	return t.provider.Capabilities()
}

// Unwrap returns the underlying provider.
func (t *TracedProvider) Unwrap() llm.Provider {
	return t.provider
}

// Complete records a client span, request outcome, token usage and latency.
func (t *TracedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	ctx, span := t.tracer.Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", t.provider.Name()),
			attribute.String("llm.model", req.Model),
			attribute.Bool("llm.json_mode", req.JSONMode),
			attribute.Int("llm.suppress_terms", len(req.SuppressTerms)),
		),
	)
	defer span.End()

	resp, err := t.provider.Complete(ctx, req)
	providerAttr := attribute.String("provider", t.provider.Name())
	t.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(providerAttr))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.requests.Add(ctx, 1, metric.WithAttributes(providerAttr,
			attribute.String("outcome", pkgerrors.Classify(err))))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("llm.response.model", resp.Model),
		attribute.String("llm.response.finish_reason", string(resp.FinishReason)),
		attribute.Int("llm.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.usage.output_tokens", resp.Usage.OutputTokens),
	)
	t.requests.Add(ctx, 1, metric.WithAttributes(providerAttr, attribute.String("outcome", "success")))
	t.tokens.Add(ctx, int64(resp.Usage.InputTokens), metric.WithAttributes(providerAttr, attribute.String("direction", "input")))
	t.tokens.Add(ctx, int64(resp.Usage.OutputTokens), metric.WithAttributes(providerAttr, attribute.String("direction", "output")))
	return resp, nil
}

var _ llm.Provider = (*TracedProvider)(nil)
