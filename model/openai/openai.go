// Package openai provides a model.Provider backed by the OpenAI Chat
// Completions API (including function/tool calling). It adapts the
// conductor's transcript into the SDK's message format and back.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/model"
)

// Options configure the OpenAI adapter. Model is only used when a request
// does not name one.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Provider wraps the OpenAI Chat Completions API behind model.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New creates a provider using the official client. The API key falls back
// to the OPENAI_API_KEY environment variable read by the SDK.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: newClient(opts), opts: opts}
}

func newClient(opts Options) *openai.Client {
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	// Retries are handled by model.WithRetry.
	clientOpts = append(clientOpts, option.WithMaxRetries(0))

	client := openai.NewClient(clientOpts...)
	return &client
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Complete implements model.Provider.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params := p.buildParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &model.APIError{Provider: model.ProviderOpenAI, StatusCode: 0, Err: model.ErrEmptyResponse}
	}

	ch0 := resp.Choices[0]
	msg := core.Message{Role: core.RoleAssistant, Content: ch0.Message.Content}
	for _, tc := range ch0.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &model.Response{
		ID:           resp.ID,
		Message:      msg,
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: model.ProviderOpenAI, SupportsTools: true}
}

func wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &model.APIError{Provider: model.ProviderOpenAI, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &model.APIError{Provider: model.ProviderOpenAI, Err: err}
}

// buildParams assembles the request parameters including tool definitions.
func (p *Provider) buildParams(req model.Request) openai.ChatCompletionNewParams {
	modelID := req.Model
	if modelID == "" {
		modelID = p.opts.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Messages),
		Model:               modelID,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// buildMessages converts the transcript into chat messages. Tool results are
// placed directly after the assistant message that requested them, and tool
// calls that never produced a result are dropped so the request stays valid.
func buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	results := map[string]string{}
	for _, m := range msgs {
		if m.Role == core.RoleTool && m.ToolCallID != "" {
			if _, seen := results[m.ToolCallID]; !seen {
				results[m.ToolCallID] = m.Content
			}
		}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			var calls []openai.ChatCompletionMessageToolCallParam
			for _, tc := range m.ToolCalls {
				if _, ok := results[tc.ID]; !ok || tc.ID == "" {
					continue
				}
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: argumentsOrEmpty(tc.Arguments),
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{Role: "assistant", ToolCalls: calls}
			if m.Content != "" || len(calls) == 0 {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)}
			}
			if name := participantName(m.Name); name != "" {
				assistant.Name = openai.String(name)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
			for _, tc := range calls {
				messages = append(messages, openai.ToolMessage(results[tc.ID], tc.ID))
				delete(results, tc.ID)
			}
		case core.RoleTool:
			// Emitted right after the matching assistant message above.
			if m.ToolCallID == "" {
				messages = append(messages, openai.UserMessage(fmt.Sprintf("Result of %s: %s", m.Name, m.Content)))
			}
		}
	}
	return messages
}

// participantName maps a speaker name onto the characters OpenAI accepts in
// the name field (letters, digits, '_' and '-', at most 64).
func participantName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() == 64 {
			break
		}
	}
	return b.String()
}

func argumentsOrEmpty(args string) string {
	if args == "" {
		return "{}"
	}
	return args
}
