package mocks

import (
	"sync"
	"time"

	"github.com/phrazzld/prep-api/internal/generation"
)

// MockRecorder implements generation.Recorder and keeps what it was told.
type MockRecorder struct {
	mu        sync.Mutex
	Attempts  []generation.Kind
	Completed map[string]bool
	Requests  []generation.ErrorCode
}

// NewMockRecorder returns an empty MockRecorder.
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{Completed: make(map[string]bool)}
}

// ProviderAttempt implements generation.Recorder.
func (r *MockRecorder) ProviderAttempt(_ string, kind generation.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Attempts = append(r.Attempts, kind)
}

// ProviderCompleted implements generation.Recorder.
func (r *MockRecorder) ProviderCompleted(provider string, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Completed[provider] = success
}

// RequestCompleted implements generation.Recorder.
func (r *MockRecorder) RequestCompleted(_ generation.TaskKind, code generation.ErrorCode, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, code)
}
