// Package anthropic provides a model.Provider for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/internal/util"
	"github.com/hupe1980/agentconductor/model"
)

// continuePrompt is appended when the transcript ends on an assistant turn,
// since the Messages API would otherwise treat that turn as a prefill.
const continuePrompt = "Continue the conversation."

// Options configures the Anthropic adapter. Model is only used when a
// request does not name one.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Provider wraps the Anthropic Messages API behind model.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New creates a provider using the official client. The API key falls back
// to the ANTHROPIC_API_KEY environment variable read by the SDK.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	clientOpts = append(clientOpts, option.WithMaxRetries(0))

	client := anthropic.NewClient(clientOpts...)
	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Complete implements model.Provider.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	resp, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, wrapError(err)
	}

	msg := core.Message{Role: core.RoleAssistant}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if b, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(b)
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}
	msg.Content = text.String()

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return &model.Response{
		ID:           resp.ID,
		Message:      msg,
		FinishReason: finishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: string(p.opts.Model), Provider: model.ProviderAnthropic, SupportsTools: true}
}

func wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &model.APIError{Provider: model.ProviderAnthropic, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &model.APIError{Provider: model.ProviderAnthropic, Err: err}
}

func (p *Provider) buildParams(req model.Request) anthropic.MessageNewParams {
	modelID := anthropic.Model(req.Model)
	if modelID == "" {
		modelID = p.opts.Model
	}
	system, messages := buildMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:       modelID,
		Messages:    messages,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

type turn struct {
	role   string
	blocks []anthropic.ContentBlockParamUnion
}

// buildMessages splits the transcript into the system prompt and alternating
// user/assistant turns. Leading system messages form the system prompt; later
// ones are passed as user text. Tool results become tool_result blocks and
// tool calls without a result are dropped.
func buildMessages(msgs []core.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam

	results := map[string]bool{}
	for _, m := range msgs {
		if m.Role == core.RoleTool && m.ToolCallID != "" {
			results[m.ToolCallID] = true
		}
	}

	var turns []turn
	add := func(role string, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].blocks = append(turns[n-1].blocks, blocks...)
			return
		}
		turns = append(turns, turn{role: role, blocks: blocks})
	}

	leading := true
	for _, m := range msgs {
		if m.Role == core.RoleSystem && leading {
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
			continue
		}
		leading = false

		switch m.Role {
		case core.RoleSystem, core.RoleUser:
			if m.Content != "" {
				add("user", anthropic.NewTextBlock(m.Content))
			}
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				if !results[tc.ID] {
					continue
				}
				var input any = map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = map[string]any{"raw": tc.Arguments}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			add("assistant", blocks...)
		case core.RoleTool:
			if m.ToolCallID == "" {
				add("user", anthropic.NewTextBlock(m.Content))
				continue
			}
			add("user", anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		}
	}

	if len(turns) == 0 || turns[len(turns)-1].role == "assistant" {
		add("user", anthropic.NewTextBlock(continuePrompt))
	}

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(t.blocks...))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(t.blocks...))
	}
	return system, messages
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: util.Properties(t.Parameters),
		}
		if required := util.RequiredFields(t.Parameters); len(required) > 0 {
			inputSchema.Required = required
		}
		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, t.Name)
		if out[i].OfTool != nil && t.Description != "" {
			out[i].OfTool.Description = anthropic.String(t.Description)
		}
	}
	return out
}
