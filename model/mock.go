package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentconductor/core"
)

// MockProvider is a lightweight in-memory Provider useful for tests, examples
// and the CLI's offline mode. It answers with canned text keyed by the last
// message content, or echoes that content.
type MockProvider struct {
	mu        sync.RWMutex
	responses map[string]string
}

// NewMockProvider constructs an empty MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{responses: make(map[string]string)}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockProvider) AddResponse(prompt, response string) {
	m.mu.Lock()
	m.responses[prompt] = response
	m.mu.Unlock()
}

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}

	last := req.Messages[len(req.Messages)-1]

	m.mu.RLock()
	text, ok := m.responses[last.Content]
	m.mu.RUnlock()
	if !ok {
		text = fmt.Sprintf("Mock response from %s to: %s", req.Model, last.Content)
	}

	return &Response{
		Message:      core.Message{Role: core.RoleAssistant, Content: text},
		FinishReason: "stop",
	}, nil
}

// Info implements the optional info accessor.
func (m *MockProvider) Info() Info { return Info{Name: "mock", Provider: "mock", SupportsTools: false} }

// ErrScriptExhausted is returned by ScriptedProvider once every step was consumed.
var ErrScriptExhausted = errors.New("scripted provider: no more steps")

// Step is one scripted provider outcome.
type Step struct {
	Response *Response
	Err      error
}

// Reply scripts a plain text answer.
func Reply(text string) Step {
	return Step{Response: &Response{Message: core.Message{Role: core.RoleAssistant, Content: text}, FinishReason: "stop"}}
}

// CallTools scripts an answer requesting tool calls.
func CallTools(text string, calls ...core.ToolCall) Step {
	return Step{Response: &Response{
		Message:      core.Message{Role: core.RoleAssistant, Content: text, ToolCalls: calls},
		FinishReason: "tool_calls",
	}}
}

// Fail scripts a provider failure.
func Fail(err error) Step { return Step{Err: err} }

// ScriptedProvider replays a fixed sequence of steps and records every
// request it receives. It is safe for concurrent use.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	requests []Request
}

// NewScriptedProvider creates a provider that returns steps in order.
func NewScriptedProvider(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{steps: steps}
}

// Complete implements Provider.
func (s *ScriptedProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, cloneRequest(req))
	if s.next >= len(s.steps) {
		s.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	step := s.steps[s.next]
	s.next++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	resp.Message = step.Response.Message.Clone()
	return &resp, nil
}

// Requests returns copies of the requests received so far.
func (s *ScriptedProvider) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	for i, r := range s.requests {
		out[i] = cloneRequest(r)
	}
	return out
}

// Calls reports how many times Complete was invoked.
func (s *ScriptedProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func cloneRequest(r Request) Request {
	c := r
	c.Messages = make([]core.Message, len(r.Messages))
	for i, m := range r.Messages {
		c.Messages[i] = m.Clone()
	}
	c.Tools = append([]ToolDefinition(nil), r.Tools...)
	return c
}
