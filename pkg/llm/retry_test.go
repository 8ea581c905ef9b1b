package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

// mockRetryProvider is a test provider that can simulate failures.
type mockRetryProvider struct {
	failCount      int
	currentAttempt int
	failWith       error
}

func (m *mockRetryProvider) Name() string { return "mock" }

func (m *mockRetryProvider) Capabilities() Capabilities { return Capabilities{} }

func (m *mockRetryProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.currentAttempt++
	if m.currentAttempt <= m.failCount {
		return nil, m.failWith
	}
	return &CompletionResponse{Content: "ok"}, nil
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryableProvider_RecoversFromTransientErrors(t *testing.T) {
	mock := &mockRetryProvider{
		failCount: 2,
		failWith:  &pkgerrors.ProviderError{Provider: "mock", StatusCode: 503, Message: "overloaded"},
	}

	resp, err := NewRetryableProvider(mock, fastRetry(3)).Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q", resp.Content)
	}
	if mock.currentAttempt != 3 {
		t.Errorf("attempts = %d, want 3", mock.currentAttempt)
	}
}

func TestRetryableProvider_DoesNotRetryPermanentErrors(t *testing.T) {
	mock := &mockRetryProvider{
		failCount: 5,
		failWith:  &pkgerrors.ProviderError{Provider: "mock", StatusCode: 401, Message: "bad key"},
	}

	_, err := NewRetryableProvider(mock, fastRetry(3)).Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if mock.currentAttempt != 1 {
		t.Errorf("attempts = %d, want 1", mock.currentAttempt)
	}
}

func TestRetryableProvider_Exhausted(t *testing.T) {
	cause := &pkgerrors.ProviderError{Provider: "mock", StatusCode: 429, Message: "slow down"}
	mock := &mockRetryProvider{failCount: 10, failWith: cause}

	_, err := NewRetryableProvider(mock, fastRetry(2)).Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	var perr *pkgerrors.ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != 429 {
		t.Errorf("last provider error should be preserved, got %v", err)
	}
	if mock.currentAttempt != 3 {
		t.Errorf("attempts = %d, want 3", mock.currentAttempt)
	}
}

func TestRetryableProvider_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := &mockRetryProvider{failCount: 10, failWith: context.Canceled}

	_, err := NewRetryableProvider(mock, fastRetry(3)).Complete(ctx, CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if mock.currentAttempt != 1 {
		t.Errorf("attempts = %d, want 1", mock.currentAttempt)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"server error", &pkgerrors.ProviderError{StatusCode: 500}, true},
		{"rate limit", &pkgerrors.ProviderError{StatusCode: 429}, true},
		{"client error", &pkgerrors.ProviderError{StatusCode: 400}, false},
		{"timeout error", &pkgerrors.TimeoutError{Operation: "x"}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_Capped(t *testing.T) {
	r := NewRetryableProvider(&mockRetryProvider{}, RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		Multiplier:   2,
	})

	if got := r.calculateBackoff(1); got != 100*time.Millisecond {
		t.Errorf("attempt 1 backoff = %v", got)
	}
	if got := r.calculateBackoff(5); got != 250*time.Millisecond {
		t.Errorf("attempt 5 backoff = %v, want cap", got)
	}
}
