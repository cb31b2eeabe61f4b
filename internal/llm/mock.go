package llm

import (
	"context"
	"sync"
	"time"
)

// MockResponse is a canned response for the MockProvider.
type MockResponse struct {
	Text  string
	Usage Usage
	Err   error

	// StopReason defaults to StopEnd.
	StopReason string

	// Delay holds the response back. The call returns ctx.Err() if the
	// context ends first, which is how tests exercise attempt timeouts.
	Delay time.Duration
}

// MockProvider is a deterministic Provider for testing.
// It returns canned responses in FIFO order and records all requests.
// Responses queued with AddResponseFor are served only to requests whose
// Schema carries that name, so concurrent callers using different contracts
// (marking and next-question generation) get the right answers.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	routed    map[string][]MockResponse
	Calls     []Request
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses, routed: make(map[string][]MockResponse)}
}

// Generate returns the next canned response or ErrProviderUnavailable if
// the queue is empty.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, ok := m.next(req)
	if !ok {
		return nil, &ErrProviderUnavailable{Err: nil}
	}

	if resp.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(resp.Delay):
		}
	}

	if resp.Err != nil {
		return nil, resp.Err
	}

	stop := resp.StopReason
	if stop == "" {
		stop = StopEnd
	}
	return &Response{
		Text:       resp.Text,
		Usage:      resp.Usage,
		Model:      "mock",
		StopReason: stop,
	}, nil
}

func (m *MockProvider) next(req Request) (MockResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if req.Schema != nil {
		if q := m.routed[req.Schema.Name]; len(q) > 0 {
			m.routed[req.Schema.Name] = q[1:]
			return q[0], true
		}
	}

	if len(m.responses) == 0 {
		return MockResponse{}, false
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, true
}

// ModelID returns "mock".
func (m *MockProvider) ModelID() string {
	return "mock"
}

func (m *MockProvider) Vendor() string { return "mock" }

// AddResponse appends a canned response to the shared queue.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// AddResponseFor appends canned responses served only to requests whose
// schema is named schemaName.
func (m *MockProvider) AddResponseFor(schemaName string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routed[schemaName] = append(m.routed[schemaName], resps...)
}

// CallCount returns the number of Generate calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// CallCountFor returns the number of Generate calls made with the named schema.
func (m *MockProvider) CallCountFor(schemaName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Schema != nil && c.Schema.Name == schemaName {
			n++
		}
	}
	return n
}
