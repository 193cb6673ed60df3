package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentconductor/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is the normalized completion input: the model id, the full
// transcript (system message first) and the tools the agent may call.
type Request struct {
	Model    string           `json:"model"`
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed assistant turn. Message.ToolCalls carries the tool
// calls requested by the model, if any.
type Response struct {
	ID           string       `json:"id,omitempty"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Text returns the assistant text of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return r.Message.Content
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "gemini", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Provider turns a transcript into the next assistant message.
// Implementations must be safe for concurrent use.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ProviderFunc adapts an ordinary function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request) (*Response, error)

// Complete implements Provider.
func (f ProviderFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// APIError is the normalized error returned by the SDK adapters.
type APIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s api error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s api error: %v", e.Provider, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Temporary reports whether the failure is worth retrying: rate limiting,
// server side errors and transport failures without a status code.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// ErrEmptyResponse is returned when a provider answers without any choice or candidate.
var ErrEmptyResponse = errors.New("empty response")
