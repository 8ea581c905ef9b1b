package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tombee/rulegen/pkg/errors"
	"github.com/tombee/rulegen/pkg/httpclient"
)

// maxErrorBody bounds how much of an error response is echoed into messages.
const maxErrorBody = 2048

// newHTTPClient builds a provider client. Transport retries are disabled;
// llm.RetryableProvider retries with provider-aware classification instead.
func newHTTPClient(name string, timeout time.Duration) (*http.Client, error) {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = timeout
	cfg.UserAgent = "rulegen-" + name + "/1.0"
	cfg.RetryAttempts = 0
	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	return client, nil
}

// httpDoer is the subset of *http.Client the providers use.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// errorDecoder extracts a vendor error message and type from a non-2xx body.
type errorDecoder func(body []byte) (message, kind string)

// postJSON sends body as JSON and decodes a 200 response into out. Failures
// come back as *errors.ProviderError carrying the status code.
func postJSON(ctx context.Context, client httpDoer, provider, url string, headers map[string]string,
	body, out any, decodeErr errorDecoder, suggest func(status int, kind string) string, requestID string,
) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &errors.ProviderError{Provider: provider, Message: fmt.Sprintf("failed to marshal request: %v", err), RequestID: requestID}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &errors.ProviderError{Provider: provider, Message: fmt.Sprintf("failed to create request: %v", err), RequestID: requestID}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &errors.ProviderError{
			Provider:   provider,
			Message:    fmt.Sprintf("request failed: %v", err),
			Suggestion: "Check network connectivity and the provider base URL",
			RequestID:  requestID,
			Cause:      err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errors.ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
			Cause:      err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		msg, kind := "", ""
		if decodeErr != nil {
			msg, kind = decodeErr(respBody)
		}
		if msg == "" {
			msg = fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, truncate(respBody))
		}
		return &errors.ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Suggestion: suggest(resp.StatusCode, kind),
			RequestID:  requestID,
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &errors.ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to parse response: %v", err),
			RequestID:  requestID,
		}
	}
	return nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}

// suggestFor returns generic remediation text for hosted API failures.
func suggestFor(vendor string) func(int, string) string {
	return func(status int, kind string) string {
		switch status {
		case http.StatusUnauthorized:
			return "Check that your " + vendor + " API key is valid and correctly configured"
		case http.StatusForbidden:
			return "Your API key may not have access to this model"
		case http.StatusNotFound:
			return "Check the configured model name and base URL"
		case http.StatusTooManyRequests:
			return "Rate limit exceeded. Reduce request frequency or raise your quota"
		case http.StatusBadRequest:
			if kind != "" {
				return "Check the request parameters (" + kind + ")"
			}
			return "Review the request format and parameters"
		}
		if status >= 500 {
			return vendor + " API is experiencing issues. Retry after a short delay"
		}
		return "Check the " + vendor + " API documentation for more details"
	}
}

// intOr dereferences p, or returns def when p is nil.
func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}
