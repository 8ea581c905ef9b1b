package generator

import (
	"context"
	"sync"

	"github.com/tombee/rulegen/pkg/llm"
)

// fakeProvider returns canned responses in order and records requests.
type fakeProvider struct {
	mu        sync.Mutex
	name      string
	caps      llm.Capabilities
	responses []string
	errs      []error
	requests  []llm.CompletionRequest
}

func newFakeProvider(responses ...string) *fakeProvider {
	return &fakeProvider{
		name:      "fake",
		caps:      llm.Capabilities{JSONMode: true, Models: []llm.ModelInfo{{ID: "fake-1", Default: true}}},
		responses: responses,
	}
}

func (f *fakeProvider) Name() string                   { return f.name }
func (f *fakeProvider) Capabilities() llm.Capabilities { return f.caps }

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	content := ""
	if i < len(f.responses) {
		content = f.responses[i]
	}
	return &llm.CompletionResponse{
		Content: content,
		Usage:   llm.NewUsage(100, 25),
		Model:   "fake-1",
	}, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
