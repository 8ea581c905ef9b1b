package providers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/llm"
)

const (
	anthropicAPIBaseURL  = "https://api.anthropic.com/v1"
	anthropicAPIVersion  = "2023-06-01"
	anthropicDefaultMax  = 4096
	defaultHostedTimeout = 120 * time.Second
)

// AnthropicProvider implements llm.Provider for Anthropic's Messages API.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  httpDoer
}

// NewAnthropicWithCredentials is the registry factory for "anthropic".
func NewAnthropicWithCredentials(creds llm.Credentials) (llm.Provider, error) {
	c, ok := creds.(llm.APIKeyCredentials)
	if !ok {
		return nil, &errors.ConfigError{Key: "llm.api_key", Reason: "anthropic requires API key credentials"}
	}
	return NewAnthropicProvider(c)
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(c llm.APIKeyCredentials) (*AnthropicProvider, error) {
	if c.APIKey == "" {
		return nil, &errors.ConfigError{
			Key:    "llm.api_key",
			Reason: "API key is required for the anthropic provider (set ANTHROPIC_API_KEY)",
		}
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultHostedTimeout
	}
	client, err := newHTTPClient("anthropic", timeout)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicAPIBaseURL
	}
	model := c.Model
	if model == "" {
		model = llm.DefaultModel(anthropicModels).ID
	}
	return &AnthropicProvider{apiKey: c.APIKey, baseURL: baseURL, model: model, client: client}, nil
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Capabilities reports that Anthropic has no JSON mode or token bias; the
// prompt carries the output-format instructions instead.
func (p *AnthropicProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Models: anthropicModels}
}

// Complete sends a request to the Messages API.
func (p *AnthropicProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, &errors.ValidationError{
			Field:   "messages",
			Message: "completion request must have at least one message",
		}
	}
	requestID := uuid.New().String()

	apiReq := anthropicRequest{
		Model:         p.resolveModel(req.Model),
		MaxTokens:     intOr(req.MaxTokens, anthropicDefaultMax),
		Temperature:   req.Temperature,
		StopSequences: req.StopSequences,
	}
	var system []string
	for _, msg := range req.Messages {
		if msg.Role == llm.MessageRoleSystem {
			system = append(system, msg.Content)
			continue
		}
		apiReq.Messages = append(apiReq.Messages, anthropicMessage{Role: string(msg.Role), Content: msg.Content})
	}
	apiReq.System = strings.Join(system, "\n\n")

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}
	var apiResp anthropicResponse
	if err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/messages", headers, apiReq, &apiResp,
		decodeAnthropicError, suggestFor("Anthropic"), requestID); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &llm.CompletionResponse{
		Content:      text.String(),
		FinishReason: mapAnthropicStop(apiResp.StopReason),
		Usage:        llm.NewUsage(apiResp.Usage.InputTokens, apiResp.Usage.OutputTokens),
		Model:        apiResp.Model,
		RequestID:    requestID,
		Created:      time.Now(),
	}, nil
}

func (p *AnthropicProvider) resolveModel(model string) string {
	if model == "" {
		return p.model
	}
	return model
}

func mapAnthropicStop(reason string) llm.FinishReason {
	switch reason {
	case "max_tokens":
		return llm.FinishReasonLength
	case "refusal":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

func decodeAnthropicError(body []byte) (string, string) {
	var e anthropicErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return "", ""
	}
	return e.Error.Message, e.Error.Type
}

// anthropicModels lists supported Claude models with USD pricing per million tokens.
var anthropicModels = []llm.ModelInfo{
	{
		ID:                    "claude-sonnet-4-5",
		Name:                  "Claude Sonnet 4.5",
		ContextWindow:         200000,
		MaxOutputTokens:       64000,
		InputPricePerMillion:  3.00,
		OutputPricePerMillion: 15.00,
		Default:               true,
	},
	{
		ID:                    "claude-haiku-4-5",
		Name:                  "Claude Haiku 4.5",
		ContextWindow:         200000,
		MaxOutputTokens:       64000,
		InputPricePerMillion:  1.00,
		OutputPricePerMillion: 5.00,
	},
	{
		ID:                    "claude-opus-4-1",
		Name:                  "Claude Opus 4.1",
		ContextWindow:         200000,
		MaxOutputTokens:       32000,
		InputPricePerMillion:  15.00,
		OutputPricePerMillion: 75.00,
	},
	{
		ID:                    "claude-3-opus-20240229",
		Name:                  "Claude 3 Opus",
		ContextWindow:         200000,
		MaxOutputTokens:       4096,
		InputPricePerMillion:  15.00,
		OutputPricePerMillion: 75.00,
	},
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
