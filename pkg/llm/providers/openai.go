package providers

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/llm"
)

const (
	openAIAPIBaseURL = "https://api.openai.com/v1"

	// suppressBias is the strongest negative weight logit_bias accepts.
	suppressBias = -100

	// maxLogitBias is the API's limit on logit_bias entries.
	maxLogitBias = 300
)

// TokenEncoder maps text to token IDs for a model's tokenizer. The OpenAI
// provider needs one to turn suppression terms into logit_bias entries.
type TokenEncoder interface {
	Encode(model, text string) ([]int, error)
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithTokenEncoder enables logit_bias suppression of CompletionRequest.SuppressTerms.
func WithTokenEncoder(enc TokenEncoder) OpenAIOption {
	return func(p *OpenAIProvider) { p.encoder = enc }
}

// OpenAIProvider implements llm.Provider for the Chat Completions API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  httpDoer
	encoder TokenEncoder
}

// NewOpenAIWithCredentials is the registry factory for "openai".
func NewOpenAIWithCredentials(creds llm.Credentials) (llm.Provider, error) {
	c, ok := creds.(llm.APIKeyCredentials)
	if !ok {
		return nil, &errors.ConfigError{Key: "llm.api_key", Reason: "openai requires API key credentials"}
	}
	return NewOpenAIProvider(c)
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(c llm.APIKeyCredentials, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if c.APIKey == "" {
		return nil, &errors.ConfigError{
			Key:    "llm.api_key",
			Reason: "API key is required for the openai provider (set OPENAI_API_KEY)",
		}
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultHostedTimeout
	}
	client, err := newHTTPClient("openai", timeout)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIAPIBaseURL
	}
	model := c.Model
	if model == "" {
		model = llm.DefaultModel(openAIModels).ID
	}

	p := &OpenAIProvider{apiKey: c.APIKey, baseURL: baseURL, model: model, client: client}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Capabilities returns the features supported by this provider.
func (p *OpenAIProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		JSONMode:         true,
		TokenSuppression: p.encoder != nil,
		Models:           openAIModels,
	}
}

// Complete sends a request to the Chat Completions API.
func (p *OpenAIProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, &errors.ValidationError{
			Field:   "messages",
			Message: "completion request must have at least one message",
		}
	}
	requestID := uuid.New().String()
	model := req.Model
	if model == "" {
		model = p.model
	}

	apiReq := openAIRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.StopSequences,
		LogitBias:   p.logitBias(model, req.SuppressTerms),
	}
	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, openAIMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	var apiResp openAIResponse
	if err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/chat/completions", headers, apiReq, &apiResp,
		decodeOpenAIError, suggestFor("OpenAI"), requestID); err != nil {
		return nil, err
	}
	if len(apiResp.Choices) == 0 {
		return nil, &errors.ProviderError{Provider: p.Name(), Message: "response contained no choices", RequestID: requestID}
	}

	choice := apiResp.Choices[0]
	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: mapOpenAIFinish(choice.FinishReason),
		Usage:        llm.NewUsage(apiResp.Usage.PromptTokens, apiResp.Usage.CompletionTokens),
		Model:        apiResp.Model,
		RequestID:    requestID,
		Created:      time.Now(),
	}, nil
}

// logitBias suppresses the first token of each term, with and without a
// leading space, which is how identifiers usually appear mid-JSON. Without an
// encoder the hints are dropped and the prompt alone carries the constraint.
func (p *OpenAIProvider) logitBias(model string, terms []string) map[string]int {
	if p.encoder == nil || len(terms) == 0 {
		return nil
	}
	bias := make(map[string]int)
	for _, term := range terms {
		for _, variant := range []string{term, " " + term, `"` + term} {
			ids, err := p.encoder.Encode(model, variant)
			if err != nil || len(ids) == 0 {
				continue
			}
			if len(bias) >= maxLogitBias {
				return bias
			}
			bias[strconv.Itoa(ids[0])] = suppressBias
		}
	}
	if len(bias) == 0 {
		return nil
	}
	return bias
}

func mapOpenAIFinish(reason string) llm.FinishReason {
	switch reason {
	case "length":
		return llm.FinishReasonLength
	case "content_filter":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

func decodeOpenAIError(body []byte) (string, string) {
	var e openAIErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return "", ""
	}
	return e.Error.Message, e.Error.Type
}

// openAIModels lists supported models with USD pricing per million tokens.
var openAIModels = []llm.ModelInfo{
	{
		ID:                    "gpt-4o",
		Name:                  "GPT-4o",
		ContextWindow:         128000,
		MaxOutputTokens:       16384,
		InputPricePerMillion:  2.50,
		OutputPricePerMillion: 10.00,
		Default:               true,
	},
	{
		ID:                    "gpt-4o-mini",
		Name:                  "GPT-4o mini",
		ContextWindow:         128000,
		MaxOutputTokens:       16384,
		InputPricePerMillion:  0.15,
		OutputPricePerMillion: 0.60,
	},
	{
		ID:                    "gpt-4-turbo",
		Name:                  "GPT-4 Turbo",
		ContextWindow:         128000,
		MaxOutputTokens:       4096,
		InputPricePerMillion:  10.00,
		OutputPricePerMillion: 30.00,
	},
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	Temperature    *float64              `json:"temperature,omitempty"`
	Stop           []string              `json:"stop,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
	LogitBias      map[string]int        `json:"logit_bias,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
