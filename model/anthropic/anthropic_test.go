package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/model"
)

const messageJSON = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-5-sonnet-latest",
  "content": [
    {"type": "text", "text": "Adding."},
    {"type": "tool_use", "id": "toolu_1", "name": "add", "input": {"a": 1, "b": 2}}
  ],
  "stop_reason": "tool_use",
  "stop_sequence": null,
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`

func TestProvider_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageJSON)
	}))
	defer srv.Close()

	p := New(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
	})

	resp, err := p.Complete(context.Background(), model.Request{
		Model: "claude-3-5-sonnet-latest",
		Messages: []core.Message{
			core.NewSystemMessage("You are a helpful agent."),
			core.NewUserMessage("add 1 and 2"),
		},
		Tools: []model.ToolDefinition{{
			Name:        "add",
			Description: "Adds two numbers",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"a": map[string]any{"type": "number"}},
				"required":   []string{"a"},
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-3-5-sonnet-latest", body["model"])
	assert.NotEmpty(t, body["system"])
	assert.Len(t, body["messages"], 1)
	assert.Len(t, body["tools"], 1)

	assert.Equal(t, "Adding.", resp.Text())
	assert.Equal(t, "tool_use", resp.FinishReason)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.Message.ToolCalls[0].ID)
	assert.Equal(t, "add", resp.Message.ToolCalls[0].Name)
	assert.JSONEq(t, `{"a":1,"b":2}`, resp.Message.ToolCalls[0].Arguments)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestProvider_CompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	p := New(func(o *Options) { o.APIKey = "k"; o.BaseURL = srv.URL })
	_, err := p.Complete(context.Background(), model.Request{Model: "claude-3-haiku", Messages: []core.Message{core.NewUserMessage("hi")}})

	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.False(t, model.IsRetryable(err))
}

func TestBuildMessages(t *testing.T) {
	transcript := []core.Message{
		core.NewSystemMessage("sys"),
		core.NewUserMessage("hi"),
		core.NewAssistantMessage("A", "first"),
		core.NewAssistantMessage("B", "second"),
		{Role: core.RoleAssistant, Name: "A", ToolCalls: []core.ToolCall{{ID: "t1", Name: "add", Arguments: `{"a":1}`}, {ID: "t2", Name: "nope"}}},
		core.NewSystemMessage("Agent A tried to call unknown tool: nope"),
		core.NewToolMessage("t1", "add", "1"),
	}

	system, msgs := buildMessages(transcript)
	require.Len(t, system, 1)
	assert.Equal(t, "sys", system[0].Text)

	// user, assistant(first+second+tool_use), user(notice+tool_result)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Len(t, msgs[1].Content, 3, "unresolved tool calls are dropped")
	assert.Equal(t, "user", string(msgs[2].Role))
	assert.Len(t, msgs[2].Content, 2)
}

func TestBuildMessages_EndsWithUserTurn(t *testing.T) {
	_, msgs := buildMessages([]core.Message{
		core.NewSystemMessage("sys"),
		core.NewUserMessage("hi"),
		core.NewAssistantMessage("A", "hello"),
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[2].Role))
}
