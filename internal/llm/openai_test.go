package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	conf := openai.DefaultConfig("test-key")
	conf.BaseURL = server.URL + "/v1"
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(conf),
		model:        "gpt-4o-mini",
		vendor:       openaiVendor,
		strictSchema: true,
	}
}

// completion writes a Chat Completions response with one choice.
func completion(w http.ResponseWriter, content, finish string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":    "chatcmpl-test",
		"model": "gpt-4o-mini-2024-07-18",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]any{"prompt_tokens": 80, "completion_tokens": 25, "total_tokens": 105},
	})
}

func TestOpenAIProvider_GeneratesExercise(t *testing.T) {
	var got map[string]any
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		completion(w, `{"sentence":"Yo ___ estudiante.","answer":"soy"}`, "stop")
	})

	resp, err := p.Generate(context.Background(), Request{
		System:      "You write Spanish exercises.",
		Messages:    []Message{{Role: RoleUser, Content: "A gap-fill on ser."}},
		MaxTokens:   300,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"sentence":"Yo ___ estudiante.","answer":"soy"}`, resp.Text)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.Model)
	assert.Equal(t, StopEnd, resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 80, OutputTokens: 25, TotalTokens: 105}, resp.Usage)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 300, got["max_completion_tokens"])
	assert.Nil(t, got["response_format"], "no contract, no response_format")
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAIProvider_StrictContract(t *testing.T) {
	var got map[string]any
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		completion(w, `{"sentence":"Tengo hambre.","answer":"I am hungry."}`, "length")
	})

	schema := &Schema{Name: "translation-question", Description: "A sentence to translate", Definition: map[string]any{"type": "object"}}
	resp, err := p.Generate(context.Background(), UserPrompt("You write exercises.", "go", schema))
	require.NoError(t, err)
	assert.Equal(t, StopMaxTokens, resp.StopReason)

	sys := got["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, "You write exercises.", sys["content"], "strict providers do not repeat the contract")

	rf := got["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", rf["type"])
	js := rf["json_schema"].(map[string]any)
	assert.Equal(t, true, js["strict"])
	assert.Equal(t, "translation-question", js["name"])
	assert.Equal(t, "A sentence to translate", js["description"])
}

func TestOpenAIProvider_OutputProblems(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"id": "x", "model": "gpt-4o-mini", "choices": []any{}})
		}, ErrEmptyResponse},
		{"content filter", func(w http.ResponseWriter, r *http.Request) {
			completion(w, "", "content_filter")
		}, ErrOutputBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestOpenAIProvider(t, tt.handler)
			_, err := p.Generate(context.Background(), UserPrompt("", "translate", nil))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAIProvider_StatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		rateLimit bool
		transient bool
	}{
		{http.StatusTooManyRequests, true, true},
		{http.StatusInternalServerError, false, true},
		{http.StatusServiceUnavailable, false, true},
		{http.StatusUnauthorized, false, false},
		{http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"type": "error", "message": http.StatusText(tt.status)},
				})
			})

			_, err := p.Generate(context.Background(), UserPrompt("", "test", nil))
			require.Error(t, err)

			var rl *ErrRateLimit
			assert.Equal(t, tt.rateLimit, errors.As(err, &rl))
			if !tt.rateLimit {
				var un *ErrProviderUnavailable
				require.ErrorAs(t, err, &un)
				assert.Equal(t, tt.status, un.Status)
				assert.Equal(t, openaiVendor, un.Vendor)
			}
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestNewOpenAIProvider(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "gpt-4o"})
	require.Error(t, err)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-mini", BaseURL: "https://llm.internal.example/v1"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", p.ModelID())
	assert.Equal(t, openaiVendor, p.Vendor())
	assert.True(t, p.strictSchema)
	assert.False(t, p.contractInPrompt)
}
