package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/tombee/rulegen/internal/tracing"
	"github.com/tombee/rulegen/pkg/constrain"
	pkgerrors "github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/llm"
)

func TestNew_NilProvider(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, llm.ErrInvalidProvider)
}

func TestLLMGenerator_Model(t *testing.T) {
	g, err := New(newFakeProvider())
	require.NoError(t, err)
	assert.Equal(t, "fake", g.Name())
	assert.Equal(t, "fake-1", g.Model())

	g, _ = New(newFakeProvider(), WithModel("fake-2"))
	assert.Equal(t, "fake-2", g.Model())
}

func TestLLMGenerator_Generate(t *testing.T) {
	p := newFakeProvider("```json\n{\"rules\": [{\"name\": \"r1\"}]}\n```")
	g, err := New(p, WithTemperature(0.1), WithMaxTokens(2048))
	require.NoError(t, err)

	catalog := sampleCatalog()
	catalog[constrain.ContextKeyPreamble] = "ALLOWED: slack"
	catalog[constrain.ContextKeyAttempt] = 2
	catalog[constrain.ContextKeyMaxAttempts] = 3
	catalog[constrain.ContextKeySuppress] = []string{"teams"}

	ctx := tracing.ToContext(context.Background(), "req-123")
	doc, tokens, err := g.Generate(ctx, catalog, "notify slack when cpu is high")
	require.NoError(t, err)
	assert.Equal(t, 125, tokens)
	assert.Len(t, doc["rules"], 1)

	require.Equal(t, 1, p.calls())
	req := p.requests[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.MessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "ALLOWED: slack")
	assert.Contains(t, req.Messages[1].Content, "attempt 2 of 3")
	assert.True(t, req.JSONMode)
	assert.Equal(t, []string{"teams"}, req.SuppressTerms)
	assert.Equal(t, 0.1, *req.Temperature)
	assert.Equal(t, 2048, *req.MaxTokens)
	assert.Equal(t, "req-123", req.Metadata["request_id"])
}

func TestLLMGenerator_Generate_JSONModeFollowsCapabilities(t *testing.T) {
	p := newFakeProvider(`{"rules": []}`)
	p.caps.JSONMode = false
	g, _ := New(p)

	_, _, err := g.Generate(context.Background(), map[string]any{}, "x")
	require.NoError(t, err)
	assert.False(t, p.requests[0].JSONMode)
}

func TestLLMGenerator_Generate_InvalidJSON(t *testing.T) {
	g, _ := New(newFakeProvider("I cannot help with that."))

	_, tokens, err := g.Generate(context.Background(), map[string]any{}, "x")
	require.Error(t, err)
	assert.Equal(t, 125, tokens, "tokens are reported even when parsing fails")

	var perr *pkgerrors.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "fake", perr.Provider)
}

func TestLLMGenerator_Generate_ProviderError(t *testing.T) {
	p := newFakeProvider()
	p.errs = []error{errors.New("connection reset")}
	g, _ := New(p)

	_, tokens, err := g.Generate(context.Background(), map[string]any{}, "x")
	require.Error(t, err)
	assert.Zero(t, tokens)

	var perr *pkgerrors.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Message, "connection reset")
}

func TestLLMGenerator_Generate_EmptyIntent(t *testing.T) {
	p := newFakeProvider()
	g, _ := New(p)

	_, _, err := g.Generate(context.Background(), map[string]any{}, "  ")
	var verr *pkgerrors.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Zero(t, p.calls())
}

func TestLLMGenerator_DrivenByEngine(t *testing.T) {
	p := newFakeProvider(
		`{"rules": [{"name": "r", "trigger": {"source": "slack"}, "actions": [{"type": "send_slack_alert"}]}]}`,
		`{"rules": [{"name": "r", "trigger": {"source": "slack"}, "actions": [{"type": "post_message"}]}]}`,
	)
	g, _ := New(p)

	catalog := sampleCatalog()
	engine := constrain.New(catalog)
	result, err := engine.Generate(context.Background(), "notify", g)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempt)
	assert.Equal(t, []string{"send_slack_alert"}, result.ViolationsRepaired)
	assert.Contains(t, p.requests[1].Messages[0].Content, "send_slack_alert")
}

func TestLLMGenerator_GenerateBatch(t *testing.T) {
	p := newFakeProvider(`[{"rules": []}, {"generatedRules": [{"name": "x"}]}]`)
	g, _ := New(p)

	docs, tokens, err := g.GenerateBatch(context.Background(), sampleCatalog(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 125, tokens)
	require.Len(t, docs, 2)
	assert.Len(t, docs[1]["rules"], 1)
	assert.Equal(t, DefaultBatchMaxTokens, *p.requests[0].MaxTokens)
	assert.Contains(t, p.requests[0].Messages[1].Content, "1. a\n2. b\n")

	_, _, err = g.GenerateBatch(context.Background(), sampleCatalog(), nil)
	assert.Error(t, err)
}

func TestLLMGenerator_EvaluateCondition_Local(t *testing.T) {
	p := newFakeProvider()
	g, _ := New(p)

	ok, err := g.EvaluateCondition(context.Background(), "$metrics.cpu > 80",
		map[string]any{"metrics": map[string]any{"cpu": 95}})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, p.calls(), "locally decidable conditions must not call the model")
}

func TestLLMGenerator_EvaluateCondition_FallsBackToModel(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"true", true},
		{" TRUE.\n", true},
		{"false", false},
		{"maybe", false},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			p := newFakeProvider(tt.answer)
			g, _ := New(p)

			got, err := g.EvaluateCondition(context.Background(), "$workflow_state.status == running",
				map[string]any{"workflow_state": map[string]any{"status": "running"}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			require.Equal(t, 1, p.calls())
			req := p.requests[0]
			assert.Equal(t, 0.0, *req.Temperature)
			assert.Equal(t, conditionMaxTokens, *req.MaxTokens)
			assert.Contains(t, req.Messages[0].Content, "Condition to evaluate:\n$workflow_state.status == running")
		})
	}
}

func TestLLMGenerator_Refine(t *testing.T) {
	p := newFakeProvider(`{"rules": [{"name": "better"}]}`)
	g, _ := New(p)

	current := map[string]any{"rules": []any{map[string]any{"name": "first"}}}
	doc, tokens, err := g.Refine(context.Background(), current, "rename the rule", sampleCatalog())
	require.NoError(t, err)
	assert.Equal(t, 125, tokens)
	assert.Equal(t, "better", doc["rules"].([]any)[0].(map[string]any)["name"])
	assert.Contains(t, p.requests[0].Messages[1].Content, `"name": "first"`)
	assert.Contains(t, p.requests[0].Messages[1].Content, "rename the rule")

	_, _, err = g.Refine(context.Background(), current, "", sampleCatalog())
	assert.Error(t, err)
}

func TestLLMGenerator_RateLimiterHonoursContext(t *testing.T) {
	p := newFakeProvider(`{"rules": []}`)
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	g, _ := New(p, WithRateLimiter(limiter))

	_, _, err := g.Generate(context.Background(), map[string]any{}, "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = g.Generate(ctx, map[string]any{}, "second")
	require.Error(t, err)
	assert.Equal(t, 1, p.calls())
}
