package llm

import (
	"context"
	"sync"
)

type usageKey struct{}

// UsageTracker accumulates token usage across the completions of one request.
type UsageTracker struct {
	mu    sync.Mutex
	usage TokenUsage
	calls int
}

// WithUsageTracker returns a context that records usage into a new tracker.
func WithUsageTracker(ctx context.Context) (context.Context, *UsageTracker) {
	t := &UsageTracker{}
	return context.WithValue(ctx, usageKey{}, t), t
}

// RecordUsage adds u to the tracker in ctx, if any.
func RecordUsage(ctx context.Context, u TokenUsage) {
	if t, ok := ctx.Value(usageKey{}).(*UsageTracker); ok {
		t.mu.Lock()
		t.usage = t.usage.Add(u)
		t.calls++
		t.mu.Unlock()
	}
}

// Usage returns the accumulated usage.
func (t *UsageTracker) Usage() TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// Calls returns the number of completions recorded.
func (t *UsageTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
