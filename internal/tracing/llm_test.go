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
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/llm"
)

type stubProvider struct {
	resp *llm.CompletionResponse
	err  error
}

func (s *stubProvider) Name() string                   { return "stub" }
func (s *stubProvider) Capabilities() llm.Capabilities { return llm.Capabilities{} }
func (s *stubProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return s.resp, s.err
}

func newTestProvider(t *testing.T, inner llm.Provider) (*TracedProvider, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	traced, err := wrapProvider(inner, tp.Tracer("test"), mp.Meter("test"))
	if err != nil {
		t.Fatalf("wrapProvider: %v", err)
	}
	return traced, recorder, reader
}

func sumCounter(t *testing.T, reader *sdkmetric.ManualReader, name string, match attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(match.Key); ok && v == match.Value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestTracedProvider_Success(t *testing.T) {
	inner := &stubProvider{resp: &llm.CompletionResponse{
		Content:      "{}",
		Model:        "m1",
		FinishReason: llm.FinishReasonStop,
		Usage:        llm.NewUsage(10, 5),
	}}
	traced, recorder, reader := newTestProvider(t, inner)

	resp, err := traced.Complete(context.Background(), llm.CompletionRequest{Model: "m1"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "{}" {
		t.Errorf("Content = %q", resp.Content)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "llm.complete" {
		t.Fatalf("expected one llm.complete span, got %d", len(spans))
	}

	if got := sumCounter(t, reader, "rulegen_llm_requests_total", attribute.String("outcome", "success")); got != 1 {
		t.Errorf("success requests = %d, want 1", got)
	}
	if got := sumCounter(t, reader, "rulegen_llm_tokens_total", attribute.String("direction", "input")); got != 10 {
		t.Errorf("input tokens = %d, want 10", got)
	}
}

func TestTracedProvider_ErrorClassified(t *testing.T) {
	inner := &stubProvider{err: &pkgerrors.ProviderError{Provider: "stub", StatusCode: 503, Message: "down"}}
	traced, recorder, reader := newTestProvider(t, inner)

	_, err := traced.Complete(context.Background(), llm.CompletionRequest{})
	var perr *pkgerrors.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError to pass through, got %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || len(spans[0].Events()) == 0 {
		t.Error("error should be recorded on the span")
	}
	if got := sumCounter(t, reader, "rulegen_llm_requests_total", attribute.String("outcome", "provider")); got != 1 {
		t.Errorf("provider-error requests = %d, want 1", got)
	}
}
