package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenRouterProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenRouterProvider(OpenRouterConfig{Model: "google/gemini-2.5-flash"})
	require.Error(t, err)
}

func TestNewOpenRouterProvider_ModelPassThrough(t *testing.T) {
	// Short names belong to the native providers; OpenRouter IDs are used as-is.
	p, err := NewOpenRouterProvider(OpenRouterConfig{APIKey: "sk-or-test", Model: "gpt-mini"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-mini", p.ModelID())
	assert.Equal(t, openrouterVendor, p.vendor)
	assert.False(t, p.strictSchema)
}

func TestOpenRouterProvider_Request(t *testing.T) {
	var (
		title string
		body  map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("X-Title")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "gen-1",
			"model": "mistralai/mistral-small",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": `{"sentence":"Ich bin müde.","answer":"I am tired."}`},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52},
		})
	}))
	t.Cleanup(server.Close)

	p, err := NewOpenRouterProvider(OpenRouterConfig{
		APIKey:  "sk-or-test",
		Model:   "mistralai/mistral-small",
		BaseURL: server.URL + "/api/v1",
	})
	require.NoError(t, err)

	schema := &Schema{
		Name:        "translation-question",
		Description: "A sentence to translate",
		Definition: map[string]any{
			"type":     "object",
			"required": []any{"sentence", "answer"},
		},
	}
	resp, err := p.Generate(context.Background(), UserPrompt("You write German exercises.", "One sentence, A1.", schema))
	require.NoError(t, err)

	assert.Equal(t, "lingua", title)
	assert.Equal(t, "mistralai/mistral-small", resp.Model)
	assert.Equal(t, 52, resp.Usage.TotalTokens)

	msgs := body["messages"].([]any)
	system := msgs[0].(map[string]any)["content"].(string)
	assert.True(t, strings.HasPrefix(system, "You write German exercises.\n\n"), system)
	assert.Contains(t, system, `"translation-question" (A sentence to translate)`)
	assert.Contains(t, system, `"required":["sentence","answer"]`)

	js := body["response_format"].(map[string]any)["json_schema"].(map[string]any)
	assert.NotEqual(t, true, js["strict"])
}

func TestWithContractHint_NoSystemPrompt(t *testing.T) {
	got := withContractHint("", &Schema{Name: "marking-result", Definition: map[string]any{"type": "object"}})
	assert.Equal(t, "Reply with a single JSON object for the contract \"marking-result\". It must validate against this JSON Schema:\n{\"type\":\"object\"}", got)
}
