package llm

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openrouterVendor         = "openrouter"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

	// openrouterAppTitle identifies lingua on OpenRouter's usage pages.
	openrouterAppTitle = "lingua"
)

// NewOpenRouterProvider creates a provider for OpenRouter's
// OpenAI-compatible endpoint. Model IDs are passed through untouched
// ("vendor/model"). Routed backends differ in how well they follow
// response_format, so the contract is also spelled out in the system
// prompt and strict decoding is left off.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter API key is required")
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	conf.BaseURL = defaultOpenRouterBaseURL
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	conf.HTTPClient = &http.Client{Transport: titleTransport{base: http.DefaultTransport}}

	return &OpenAIProvider{
		client:           openai.NewClientWithConfig(conf),
		model:            cfg.Model,
		vendor:           openrouterVendor,
		contractInPrompt: true,
	}, nil
}

// titleTransport adds OpenRouter's optional attribution header.
type titleTransport struct {
	base http.RoundTripper
}

func (t titleTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("X-Title", openrouterAppTitle)
	return t.base.RoundTrip(r)
}

// withContractHint appends the contract to a system prompt.
func withContractHint(system string, s *Schema) string {
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	b.WriteString("Reply with a single JSON object for the contract \"")
	b.WriteString(s.Name)
	b.WriteString("\"")
	if s.Description != "" {
		b.WriteString(" (")
		b.WriteString(s.Description)
		b.WriteString(")")
	}
	b.WriteString(". It must validate against this JSON Schema:\n")
	if def, err := json.Marshal(s.Definition); err == nil {
		b.Write(def)
	}
	return b.String()
}
