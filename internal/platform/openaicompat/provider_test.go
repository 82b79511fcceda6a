package openaicompat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/prep-api/internal/config"
	"github.com/phrazzld/prep-api/internal/generation"
	"github.com/phrazzld/prep-api/internal/platform/openaicompat"
)

type chatRequest struct {
	Model          string          `json:"model"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat json.RawMessage `json:"response_format"`
	Messages       []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type reply struct {
	status  int
	header  map[string]string
	body    string
	content string
	finish  string
}

// chatServer serves /v1/chat/completions with one reply per model name.
type chatServer struct {
	mu       sync.Mutex
	requests []chatRequest
	auth     []string
	replies  map[string]reply
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	rep, ok := s.replies[req.Model]
	s.mu.Unlock()

	if !ok {
		rep = reply{status: http.StatusNotFound, body: `{"error":{"message":"model not found","type":"invalid_request_error"}}`}
	}
	for k, v := range rep.header {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	if rep.status != 0 && rep.status != http.StatusOK {
		w.WriteHeader(rep.status)
		_, _ = w.Write([]byte(rep.body))
		return
	}

	finish := rep.finish
	if finish == "" {
		finish = "stop"
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": finish,
			"message":       map[string]any{"role": "assistant", "content": rep.content},
		}},
	})
}

func (s *chatServer) models() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Model
	}
	return out
}

func newTestProvider(t *testing.T, replies map[string]reply, models ...string) (*openaicompat.Provider, *chatServer) {
	t.Helper()

	srv := &chatServer{replies: replies}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	p, err := openaicompat.New(openaicompat.Config{
		Name:        "groq",
		APIKey:      "gsk_test",
		BaseURL:     ts.URL + "/v1",
		Models:      models,
		Temperature: 0.5,
		Timeout:     5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return p, srv
}

var questionSpec = generation.PromptSpec{
	Task:        generation.TaskQuestionSet,
	Instruction: "Write 2 questions. Respond with a JSON array only.",
	Shape:       generation.ShapeQuestionList,
}

var explanationSpec = generation.PromptSpec{
	Task:        generation.TaskConceptExplanation,
	Instruction: "Explain closures. Respond with a JSON object only.",
	Shape:       generation.ShapeExplanation,
}

func TestInvokeSendsChatCompletion(t *testing.T) {
	t.Parallel()

	p, srv := newTestProvider(t, map[string]reply{
		"llama-3.3-70b-versatile": {content: `[{"question":"Q","answer":"A"}]`},
	}, "llama-3.3-70b-versatile")

	res, err := p.Invoke(context.Background(), questionSpec, 4096)

	require.NoError(t, err)
	assert.Equal(t, generation.ProviderResult{
		Provider: "groq",
		Model:    "llama-3.3-70b-versatile",
		Text:     `[{"question":"Q","answer":"A"}]`,
	}, res)

	require.Len(t, srv.requests, 1)
	req := srv.requests[0]
	assert.Equal(t, 4096, req.MaxTokens)
	assert.InDelta(t, 0.5, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, questionSpec.Instruction, req.Messages[0].Content)
	assert.Empty(t, req.ResponseFormat, "arrays are not requested through JSON mode")
	assert.Equal(t, "Bearer gsk_test", srv.auth[0])
}

func TestInvokeRequestsJSONObjectForObjects(t *testing.T) {
	t.Parallel()

	p, srv := newTestProvider(t, map[string]reply{
		"m": {content: `{"title":"T","explanation":"E"}`},
	}, "m")

	_, err := p.Invoke(context.Background(), explanationSpec, 2048)

	require.NoError(t, err)
	require.Len(t, srv.requests, 1)
	assert.JSONEq(t, `{"type":"json_object"}`, string(srv.requests[0].ResponseFormat))
}

func TestInvokeFallsThroughModels(t *testing.T) {
	t.Parallel()

	p, srv := newTestProvider(t, map[string]reply{
		"primary":   {status: http.StatusServiceUnavailable, body: `{"error":{"message":"over capacity","type":"server_error"}}`},
		"secondary": {content: "[]"},
	}, "primary", "secondary")

	res, err := p.Invoke(context.Background(), questionSpec, 100)

	require.NoError(t, err)
	assert.Equal(t, "secondary", res.Model)
	assert.Equal(t, []string{"primary", "secondary"}, srv.models())
}

func TestInvokeClassifiesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		reply      reply
		wantKind   generation.Kind
		wantStatus int
		wantAfter  time.Duration
	}{
		{
			name:       "invalid key",
			reply:      reply{status: 401, body: `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`},
			wantKind:   generation.KindAuth,
			wantStatus: 401,
		},
		{
			name: "rate limited with hint",
			reply: reply{
				status: 429,
				header: map[string]string{"Retry-After": "7"},
				body:   `{"error":{"message":"Rate limit reached for model","type":"tokens","code":"rate_limit_exceeded"}}`,
			},
			wantKind:   generation.KindRateLimited,
			wantStatus: 429,
			wantAfter:  7 * time.Second,
		},
		{
			name:       "quota",
			reply:      reply{status: 429, body: `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`},
			wantKind:   generation.KindQuotaExceeded,
			wantStatus: 429,
		},
		{
			name:       "server error",
			reply:      reply{status: 500, body: `{"error":{"message":"internal","type":"server_error"}}`},
			wantKind:   generation.KindUnavailable,
			wantStatus: 500,
		},
		{
			name:     "content filter",
			reply:    reply{content: "", finish: "content_filter"},
			wantKind: generation.KindUnknown,
		},
		{
			name:     "empty content",
			reply:    reply{content: "   "},
			wantKind: generation.KindUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, _ := newTestProvider(t, map[string]reply{"m": tt.reply}, "m")

			_, err := p.Invoke(context.Background(), questionSpec, 100)

			var pe *generation.ProviderError
			require.True(t, errors.As(err, &pe), "got %T: %v", err, err)
			assert.Equal(t, "groq", pe.Provider)
			assert.Equal(t, "m", pe.Model)
			assert.Equal(t, tt.wantKind, pe.Kind)
			assert.Equal(t, tt.wantStatus, pe.StatusCode)
			assert.Equal(t, tt.wantAfter, pe.RetryAfter)
		})
	}
}

func TestInvokeStopsOnAuthError(t *testing.T) {
	t.Parallel()

	p, srv := newTestProvider(t, map[string]reply{
		"a": {status: 401, body: `{"error":{"message":"Invalid API Key"}}`},
		"b": {content: "[]"},
	}, "a", "b")

	_, err := p.Invoke(context.Background(), questionSpec, 100)

	assert.Equal(t, generation.KindAuth, generation.KindOf(err))
	assert.Equal(t, []string{"a"}, srv.models())
}

func TestInvokeUnreachableEndpoint(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	p, err := openaicompat.New(openaicompat.Config{
		Name: "groq", APIKey: "k", BaseURL: url, Models: []string{"m"}, Timeout: time.Second,
	}, nil)
	require.NoError(t, err)

	_, err = p.Invoke(context.Background(), questionSpec, 100)

	assert.Equal(t, generation.KindUnavailable, generation.KindOf(err))
}

func TestInvokeTimeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		ts.Close()
	})

	p, err := openaicompat.New(openaicompat.Config{
		Name: "groq", APIKey: "k", BaseURL: ts.URL, Models: []string{"m"}, Timeout: 20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	_, err = p.Invoke(context.Background(), questionSpec, 100)

	assert.Equal(t, generation.KindTimeout, generation.KindOf(err))
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := openaicompat.New(openaicompat.Config{APIKey: "k", Models: []string{"m"}}, nil)
	assert.Error(t, err, "name required")

	_, err = openaicompat.New(openaicompat.Config{Name: "groq", Models: []string{"m"}}, nil)
	assert.Error(t, err, "key required")

	_, err = openaicompat.New(openaicompat.Config{Name: "groq", APIKey: "k"}, nil)
	assert.Error(t, err, "models required")

	llm := config.LLMConfig{
		GroqAPIKey:            "gsk_abc",
		GroqBaseURL:           "https://api.groq.com/openai/v1",
		GroqModels:            []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
		OpenAIAPIKey:          "sk-abc",
		OpenAIModels:          []string{"gpt-4o-mini"},
		Temperature:           0.5,
		RequestTimeoutSeconds: 30,
	}

	groq, err := openaicompat.New(openaicompat.GroqConfig(llm), nil)
	require.NoError(t, err)
	assert.Equal(t, "groq", groq.Name())
	assert.Equal(t, []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}, groq.Models())

	oa, err := openaicompat.New(openaicompat.OpenAIConfig(llm), nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", oa.Name())
	assert.Equal(t, 30*time.Second, openaicompat.OpenAIConfig(llm).Timeout)
}
