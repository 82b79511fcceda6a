package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/prep-api/internal/generation"
)

// Reply is one scripted provider response.
type Reply struct {
	Text string
	Err  error
}

// MockProvider implements generation.Provider for testing
type MockProvider struct {
	// ProviderName is returned by Name. Defaults to "stub".
	ProviderName string
	// Model tags successful results.
	Model string

	// InvokeFn allows test cases to mock the Invoke behavior
	InvokeFn func(ctx context.Context, spec generation.PromptSpec, maxOutputTokens int) (generation.ProviderResult, error)

	// Replies are consumed in order when InvokeFn is nil; the last one
	// repeats once the script runs out.
	Replies []Reply

	// InvokeCalls tracks calls for verification
	InvokeCalls struct {
		// mu protects the call tracking state for concurrent test cases
		mu sync.Mutex

		Count     int
		Specs     []generation.PromptSpec
		MaxTokens []int
	}
}

// NewMockProvider returns a provider that replies with the given texts and
// errors in order.
func NewMockProvider(name string, replies ...Reply) *MockProvider {
	return &MockProvider{ProviderName: name, Model: name + "-model", Replies: replies}
}

// NewMockProviderWithText returns a provider that always answers text.
func NewMockProviderWithText(name, text string) *MockProvider {
	return NewMockProvider(name, Reply{Text: text})
}

// NewMockProviderWithError returns a provider that always fails with a
// ProviderError of the given kind.
func NewMockProviderWithError(name string, kind generation.Kind) *MockProvider {
	return NewMockProvider(name, Reply{Err: &generation.ProviderError{
		Provider: name,
		Model:    name + "-model",
		Kind:     kind,
	}})
}

// Name implements generation.Provider.
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "stub"
	}
	return m.ProviderName
}

// Invoke implements generation.Provider.
func (m *MockProvider) Invoke(
	ctx context.Context,
	spec generation.PromptSpec,
	maxOutputTokens int,
) (generation.ProviderResult, error) {
	m.InvokeCalls.mu.Lock()
	n := m.InvokeCalls.Count
	m.InvokeCalls.Count++
	m.InvokeCalls.Specs = append(m.InvokeCalls.Specs, spec)
	m.InvokeCalls.MaxTokens = append(m.InvokeCalls.MaxTokens, maxOutputTokens)
	m.InvokeCalls.mu.Unlock()

	if m.InvokeFn != nil {
		return m.InvokeFn(ctx, spec, maxOutputTokens)
	}
	if err := ctx.Err(); err != nil {
		return generation.ProviderResult{}, &generation.ProviderError{
			Provider: m.Name(), Model: m.Model, Kind: generation.KindTimeout, Err: err,
		}
	}
	if len(m.Replies) == 0 {
		return generation.ProviderResult{}, &generation.ProviderError{
			Provider: m.Name(), Model: m.Model, Kind: generation.KindUnknown, Err: generation.ErrEmptyResponse,
		}
	}

	reply := m.Replies[min(n, len(m.Replies)-1)]
	if reply.Err != nil {
		return generation.ProviderResult{}, reply.Err
	}
	return generation.ProviderResult{Provider: m.Name(), Model: m.Model, Text: reply.Text}, nil
}

// Calls returns how many times Invoke ran.
func (m *MockProvider) Calls() int {
	m.InvokeCalls.mu.Lock()
	defer m.InvokeCalls.mu.Unlock()
	return m.InvokeCalls.Count
}

// Reset clears the call tracking state
func (m *MockProvider) Reset() {
	m.InvokeCalls.mu.Lock()
	defer m.InvokeCalls.mu.Unlock()

	m.InvokeCalls.Count = 0
	m.InvokeCalls.Specs = nil
	m.InvokeCalls.MaxTokens = nil
}
