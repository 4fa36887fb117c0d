// Package testutil provides deterministic test doubles: a pattern-based
// mock model, a hash-based mock embedder and container-backed Postgres
// setup for integration tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic model responses for testing. It
// matches the last user message against registered patterns and returns
// the corresponding response, optionally with tool requests.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu         sync.Mutex
	rules      []mockRule
	fallback   string
	calls      []MockCall
	alwaysTool *ai.ToolRequest
	failWith   error
	failCount  int
}

type mockRule struct {
	pattern  string            // substring match, lower-cased
	response string            // text response
	tools    []*ai.ToolRequest // tool requests to return (nil = text only)
	once     bool              // consume the rule after first match
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage  string
	Response     string
	ToolMessages int // count of RoleTool messages seen in the request
}

// NewMockLLM creates a mock model with the given fallback response.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. Patterns match
// case-insensitively against the last user message; first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), response: response})
}

// AddToolResponse registers a pattern that triggers tool requests. The
// rule is consumed after its first match so the follow-up call (with
// tool results appended) falls through to text rules.
func (m *MockLLM) AddToolResponse(pattern string, tools []*ai.ToolRequest, textResponse string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: textResponse,
		tools:    tools,
		once:     true,
	})
}

// AlwaysRequestTool makes every response carry the given tool request,
// regardless of patterns. Used to exercise round-cap termination.
func (m *MockLLM) AlwaysRequestTool(tr *ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alwaysTool = tr
}

// FailNext makes the next n calls return err.
func (m *MockLLM) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCount = n
	m.failWith = err
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Reset clears recorded calls, keeping registered rules.
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// RegisterModel registers the mock as a Genkit model named
// "mock/test-model".
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
			Media:      false,
		},
	}, m.generate)
}

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	toolMessages := 0
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleTool {
			toolMessages++
		}
		if userText == "" && req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
		}
	}

	m.mu.Lock()
	if m.failCount > 0 {
		m.failCount--
		err := m.failWith
		m.calls = append(m.calls, MockCall{
			UserMessage:  userText,
			ToolMessages: toolMessages,
		})
		m.mu.Unlock()
		return nil, err
	}

	var matched *mockRule
	lower := strings.ToLower(userText)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			matched = &m.rules[i]
			break
		}
	}

	responseText := m.fallback
	var toolRequests []*ai.ToolRequest
	if matched != nil {
		responseText = matched.response
		toolRequests = matched.tools
		if matched.once && len(matched.tools) > 0 {
			matched.tools = nil
		}
	}
	if m.alwaysTool != nil {
		toolRequests = []*ai.ToolRequest{m.alwaysTool}
	}

	m.calls = append(m.calls, MockCall{
		UserMessage:  userText,
		Response:     responseText,
		ToolMessages: toolMessages,
	})
	m.mu.Unlock()

	if cb != nil && responseText != "" {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		})
	}

	var parts []*ai.Part
	for _, tr := range toolRequests {
		parts = append(parts, &ai.Part{
			Kind:        ai.PartToolRequest,
			ToolRequest: tr,
		})
	}
	if responseText != "" {
		parts = append(parts, ai.NewTextPart(responseText))
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: parts,
		},
	}, nil
}
