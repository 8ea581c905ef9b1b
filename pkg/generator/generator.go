// Package generator turns natural-language intent into workflow rule
// documents using an LLM provider.
//
// LLMGenerator works with any llm.Provider; the vendor is chosen by the
// registry from configuration. Its Generate method satisfies
// constrain.Generator, so it can be driven by the constrained engine.
package generator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tombee/rulegen/internal/condition"
	"github.com/tombee/rulegen/internal/tracing"
	"github.com/tombee/rulegen/pkg/constrain"
	"github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/llm"
)

// Generator is the full rule-generation capability.
type Generator interface {
	// Name returns the provider name.
	Name() string

	// Model returns the model used for requests.
	Model() string

	// Generate produces a rules document for one intent and reports the
	// tokens consumed.
	Generate(ctx context.Context, catalog map[string]any, intent string) (map[string]any, int, error)

	// GenerateBatch produces one rules document per intent in a single call.
	GenerateBatch(ctx context.Context, catalog map[string]any, intents []string) ([]map[string]any, int, error)

	// EvaluateCondition decides a rule condition against runtime variables.
	EvaluateCondition(ctx context.Context, condition string, vars map[string]any) (bool, error)

	// Refine improves an existing rules document using feedback.
	Refine(ctx context.Context, current map[string]any, feedback string, catalog map[string]any) (map[string]any, int, error)
}

const (
	// DefaultTemperature is used for generation and refinement.
	DefaultTemperature = 0.3

	// DefaultMaxTokens bounds a single generated document.
	DefaultMaxTokens = 4096

	// DefaultBatchMaxTokens bounds a batch response.
	DefaultBatchMaxTokens = 8192

	conditionMaxTokens = 10
)

// LLMGenerator implements Generator over an llm.Provider.
type LLMGenerator struct {
	provider       llm.Provider
	model          string
	temperature    float64
	maxTokens      int
	batchMaxTokens int
	evaluator      *condition.Evaluator
	limiter        *rate.Limiter
	logger         *slog.Logger
}

// Option configures an LLMGenerator.
type Option func(*LLMGenerator)

// WithModel selects the model. Empty uses the provider default.
func WithModel(model string) Option {
	return func(g *LLMGenerator) { g.model = model }
}

// WithTemperature sets the sampling temperature for generation and refinement.
func WithTemperature(t float64) Option {
	return func(g *LLMGenerator) { g.temperature = t }
}

// WithMaxTokens sets the response token limit for single documents.
func WithMaxTokens(n int) Option {
	return func(g *LLMGenerator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithRateLimiter throttles provider calls. Waiting honours the context.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(g *LLMGenerator) { g.limiter = l }
}

// WithConditionEvaluator replaces the deterministic condition evaluator.
func WithConditionEvaluator(e *condition.Evaluator) Option {
	return func(g *LLMGenerator) {
		if e != nil {
			g.evaluator = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *LLMGenerator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates an LLMGenerator for provider.
func New(provider llm.Provider, opts ...Option) (*LLMGenerator, error) {
	if provider == nil {
		return nil, llm.ErrInvalidProvider
	}
	g := &LLMGenerator{
		provider:       provider,
		temperature:    DefaultTemperature,
		maxTokens:      DefaultMaxTokens,
		batchMaxTokens: DefaultBatchMaxTokens,
		evaluator:      condition.New(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.batchMaxTokens < g.maxTokens {
		g.batchMaxTokens = g.maxTokens
	}
	g.logger = g.logger.With(slog.String("component", "generator"), slog.String("provider", provider.Name()))
	return g, nil
}

// Name returns the provider name.
func (g *LLMGenerator) Name() string {
	return g.provider.Name()
}

// Model returns the configured model, or the provider default.
func (g *LLMGenerator) Model() string {
	if g.model != "" {
		return g.model
	}
	if m := llm.DefaultModel(g.provider.Capabilities().Models); m != nil {
		return m.ID
	}
	return ""
}

// Provider returns the underlying provider.
func (g *LLMGenerator) Provider() llm.Provider {
	return g.provider
}

// Generate implements Generator and constrain.Generator.
func (g *LLMGenerator) Generate(ctx context.Context, catalog map[string]any, intent string) (map[string]any, int, error) {
	if strings.TrimSpace(intent) == "" {
		return nil, 0, &errors.ValidationError{Field: "user_intent", Message: "intent is required"}
	}

	resp, err := g.complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: BuildSystemPrompt(catalog)},
			{Role: llm.MessageRoleUser, Content: GenerateUserPrompt(catalog, intent)},
		},
		Temperature:   &g.temperature,
		MaxTokens:     &g.maxTokens,
		JSONMode:      true,
		SuppressTerms: suppressTerms(catalog),
	})
	if err != nil {
		return nil, 0, err
	}
	tokens := resp.Usage.TotalTokens

	doc, err := ParseDocument(resp.Content)
	if err != nil {
		g.logger.Warn("unparseable response", "error", err, "tokens", tokens)
		return nil, tokens, g.parseError(err)
	}
	g.logger.Debug("rules generated", "tokens", tokens)
	return doc, tokens, nil
}

// GenerateBatch implements Generator.
func (g *LLMGenerator) GenerateBatch(ctx context.Context, catalog map[string]any, intents []string) ([]map[string]any, int, error) {
	if len(intents) == 0 {
		return nil, 0, &errors.ValidationError{Field: "intents", Message: "at least one intent is required"}
	}

	resp, err := g.complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: BuildSystemPrompt(catalog)},
			{Role: llm.MessageRoleUser, Content: BatchUserPrompt(intents)},
		},
		Temperature: &g.temperature,
		MaxTokens:   &g.batchMaxTokens,
	})
	if err != nil {
		return nil, 0, err
	}
	tokens := resp.Usage.TotalTokens

	docs, err := ParseDocuments(resp.Content)
	if err != nil {
		return nil, tokens, g.parseError(err)
	}
	if len(docs) != len(intents) {
		g.logger.Warn("batch size mismatch", "intents", len(intents), "documents", len(docs))
	}
	return docs, tokens, nil
}

// EvaluateCondition implements Generator. The condition is decided locally
// when every identifier it names is present in vars; otherwise the model is
// asked.
func (g *LLMGenerator) EvaluateCondition(ctx context.Context, cond string, vars map[string]any) (bool, error) {
	result, err := g.evaluator.Evaluate(cond, vars)
	if err == nil {
		return result, nil
	}
	g.logger.Debug("condition not decidable locally, asking model",
		"unresolved", stderrors.Is(err, condition.ErrUnresolved), "error", err)

	temperature := 0.0
	maxTokens := conditionMaxTokens
	resp, err := g.complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.MessageRoleUser, Content: ConditionPrompt(cond, vars)},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return false, err
	}
	return parseBool(resp.Content), nil
}

// Refine implements Generator.
func (g *LLMGenerator) Refine(ctx context.Context, current map[string]any, feedback string, catalog map[string]any) (map[string]any, int, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, 0, &errors.ValidationError{Field: "feedback", Message: "feedback is required"}
	}

	resp, err := g.complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: BuildSystemPrompt(catalog)},
			{Role: llm.MessageRoleUser, Content: RefinePrompt(current, feedback)},
		},
		Temperature: &g.temperature,
		MaxTokens:   &g.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, 0, err
	}
	tokens := resp.Usage.TotalTokens

	doc, err := ParseDocument(resp.Content)
	if err != nil {
		return nil, tokens, g.parseError(err)
	}
	return doc, tokens, nil
}

func (g *LLMGenerator) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req.Model = g.model
	req.JSONMode = req.JSONMode && g.provider.Capabilities().JSONMode
	if id := tracing.FromContext(ctx); id != "" {
		req.Metadata = map[string]string{"request_id": id.String()}
	}

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		var perr *errors.ProviderError
		if stderrors.As(err, &perr) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &errors.ProviderError{
			Provider: g.provider.Name(),
			Message:  err.Error(),
			Cause:    err,
		}
	}
	llm.RecordUsage(ctx, resp.Usage)
	return resp, nil
}

func (g *LLMGenerator) parseError(err error) error {
	return &errors.ProviderError{
		Provider:   g.provider.Name(),
		Message:    fmt.Sprintf("model returned invalid JSON: %s", err),
		Suggestion: "retry the request; persistent failures may indicate the model ignores JSON instructions",
		Cause:      err,
	}
}

// parseBool reads a true/false answer, ignoring case and punctuation.
func parseBool(content string) bool {
	answer := strings.ToLower(strings.TrimSpace(content))
	answer = strings.Trim(answer, " .!\"'`\n")
	return answer == "true"
}

var _ constrain.Generator = (*LLMGenerator)(nil)
var _ Generator = (*LLMGenerator)(nil)
