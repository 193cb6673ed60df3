package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/model"
)

func TestBuildContents(t *testing.T) {
	transcript := []core.Message{
		core.NewSystemMessage("sys"),
		core.NewUserMessage("hi"),
		{Role: core.RoleAssistant, Name: "A", Content: "adding", ToolCalls: []core.ToolCall{
			{ID: "c1", Name: "add", Arguments: `{"a":1,"b":2}`},
			{ID: "c2", Name: "nope"},
		}},
		core.NewSystemMessage("Agent A tried to call unknown tool: nope"),
		core.NewToolMessage("c1", "add", "3"),
		core.NewAssistantMessage("B", ""),
	}

	contents, system := buildContents(transcript)
	require.NotNil(t, system)
	require.Len(t, system.Parts, 1)
	assert.Equal(t, "sys", system.Parts[0].Text)

	// user, model(text + call), user(notice), user(function response); empty assistant dropped
	require.Len(t, contents, 4)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	require.NotNil(t, contents[1].Parts[1].FunctionCall)
	assert.Equal(t, "add", contents[1].Parts[1].FunctionCall.Name)
	assert.Equal(t, 2.0, contents[1].Parts[1].FunctionCall.Args["b"])
	require.NotNil(t, contents[3].Parts[0].FunctionResponse)
	assert.Equal(t, "3", contents[3].Parts[0].FunctionResponse.Response["output"])
}

func TestBuildTools(t *testing.T) {
	tools, err := buildTools([]model.ToolDefinition{{
		Name:        "add",
		Description: "Adds",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number", "description": "first"},
			},
			"required": []string{"a"},
		},
	}})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)

	decl := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "add", decl.Name)
	require.NotNil(t, decl.Parameters)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, []string{"a"}, decl.Parameters.Required)
	assert.Equal(t, genai.TypeNumber, decl.Parameters.Properties["a"].Type)
}

func TestParseResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		ResponseID: "r1",
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{
				{Text: "sum is "},
				{FunctionCall: &genai.FunctionCall{Name: "add", Args: map[string]any{"a": 1.0}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
	}

	out, err := parseResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "r1", out.ID)
	assert.Equal(t, "sum is ", out.Text())
	assert.Equal(t, "stop", out.FinishReason)
	require.Len(t, out.Message.ToolCalls, 1)
	assert.Equal(t, "add-1", out.Message.ToolCalls[0].ID)
	assert.JSONEq(t, `{"a":1}`, out.Message.ToolCalls[0].Arguments)
	assert.Equal(t, 5, out.Usage.TotalTokens)

	_, err = parseResponse(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, model.ErrEmptyResponse)
}
