package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/llm"
)

const (
	defaultOllamaURL     = "http://localhost:11434"
	defaultOllamaModel   = "llama3.1"
	defaultOllamaTimeout = 5 * time.Minute
)

// OllamaProvider implements llm.Provider against a local Ollama server.
type OllamaProvider struct {
	baseURL string
	model   string
	client  httpDoer
}

// NewOllamaWithCredentials is the registry factory for "ollama". API key
// credentials are accepted so a shared config shape works for every vendor.
func NewOllamaWithCredentials(creds llm.Credentials) (llm.Provider, error) {
	switch c := creds.(type) {
	case llm.LocalCredentials:
		return NewOllamaProvider(c)
	case llm.APIKeyCredentials:
		return NewOllamaProvider(llm.LocalCredentials{BaseURL: c.BaseURL, Model: c.Model, Timeout: c.Timeout})
	default:
		return NewOllamaProvider(llm.LocalCredentials{})
	}
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(c llm.LocalCredentials) (*OllamaProvider, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}
	client, err := newHTTPClient("ollama", timeout)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	model := c.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{baseURL: baseURL, model: model, client: client}, nil
}

// Name returns the provider identifier.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Capabilities returns the features supported by this provider. Local
// models carry no pricing.
func (p *OllamaProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		JSONMode: true,
		Models:   []llm.ModelInfo{{ID: p.model, Name: p.model, Default: true}},
	}
}

// Complete sends a non-streaming request to /api/chat.
func (p *OllamaProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
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

	chatReq := ollamaChatRequest{Model: model, Stream: false}
	for _, msg := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, ollamaChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if req.JSONMode {
		chatReq.Format = "json"
	}
	if req.Temperature != nil || req.MaxTokens != nil || len(req.StopSequences) > 0 {
		chatReq.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens, Stop: req.StopSequences}
	}

	var chatResp ollamaChatResponse
	if err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/api/chat", nil, chatReq, &chatResp,
		decodeOllamaError, suggestOllama, requestID); err != nil {
		return nil, err
	}

	finish := llm.FinishReasonStop
	if chatResp.DoneReason == "length" {
		finish = llm.FinishReasonLength
	}
	return &llm.CompletionResponse{
		Content:      chatResp.Message.Content,
		FinishReason: finish,
		Usage:        llm.NewUsage(chatResp.PromptEvalCount, chatResp.EvalCount),
		Model:        chatResp.Model,
		RequestID:    requestID,
		Created:      time.Now(),
	}, nil
}

// HealthCheck queries /api/tags to confirm the server is reachable.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return &errors.ProviderError{
			Provider:   p.Name(),
			Message:    fmt.Sprintf("ollama unreachable at %s: %v", p.baseURL, err),
			Suggestion: "Start Ollama with 'ollama serve' or set llm.base_url",
			Cause:      err,
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &errors.ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

func decodeOllamaError(body []byte) (string, string) {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return "", ""
	}
	return e.Error, ""
}

func suggestOllama(status int, _ string) string {
	if status == http.StatusNotFound {
		return "Model not found locally. Pull it with 'ollama pull <model>'"
	}
	return "Check that Ollama is running and the model is loaded"
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Model           string            `json:"model"`
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	DoneReason      string            `json:"done_reason"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}
