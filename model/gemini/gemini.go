// Package gemini provides a model.Provider backed by the Google Gen AI SDK
// (Gemini API backend).
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/model"
)

// Options configures the Gemini adapter. Model is only used when a request
// does not name one.
type Options struct {
	Model       string
	Temperature float32
	APIKey      string
	BaseURL     string
}

// Provider wraps the Gemini GenerateContent API behind model.Provider.
type Provider struct {
	client *genai.Client
	opts   Options
}

// New creates a provider. The API key falls back to the GEMINI_API_KEY /
// GOOGLE_API_KEY environment variables read by the SDK.
func New(ctx context.Context, optFns ...func(o *Options)) (*Provider, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Provider{client: client, opts: opts}, nil
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client *genai.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{Model: "gemini-2.0-flash", Temperature: 0.7}
}

// Complete implements model.Provider.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = p.opts.Model
	}

	contents, system := buildContents(req.Messages)
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(p.opts.Temperature),
	}
	if len(req.Tools) > 0 {
		tools, err := buildTools(req.Tools)
		if err != nil {
			return nil, &model.APIError{Provider: model.ProviderGemini, Err: err}
		}
		config.Tools = tools
	}

	resp, err := p.client.Models.GenerateContent(ctx, modelID, contents, config)
	if err != nil {
		return nil, wrapError(err)
	}
	return parseResponse(resp)
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: model.ProviderGemini, SupportsTools: true}
}

func wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &model.APIError{Provider: model.ProviderGemini, StatusCode: apiErr.Code, Err: err}
	}
	return &model.APIError{Provider: model.ProviderGemini, Err: err}
}

// buildContents converts the transcript into Gen AI contents. Leading system
// messages become the system instruction; later ones are sent as user text.
func buildContents(msgs []core.Message) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(msgs))

	results := map[string]bool{}
	for _, m := range msgs {
		if m.Role == core.RoleTool && m.ToolCallID != "" {
			results[m.ToolCallID] = true
		}
	}

	leading := true
	for _, m := range msgs {
		if m.Role == core.RoleSystem && leading {
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: m.Content})
			continue
		}
		leading = false

		switch m.Role {
		case core.RoleSystem, core.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case core.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				if !results[tc.ID] {
					continue
				}
				args := map[string]any{}
				if tc.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Arguments), &args)
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}
		case core.RoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.Name,
					Response: map[string]any{"output": m.Content},
				}}},
			})
		}
	}
	return contents, system
}

// buildTools converts tool definitions into function declarations. The JSON
// schema is decoded into genai.Schema with its type names upper-cased.
func buildTools(tools []model.ToolDefinition) ([]*genai.Tool, error) {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
		if len(t.Parameters) > 0 {
			raw, err := json.Marshal(normalizeSchema(t.Parameters))
			if err != nil {
				return nil, fmt.Errorf("encode schema of %s: %w", t.Name, err)
			}
			var schema genai.Schema
			if err := json.Unmarshal(raw, &schema); err != nil {
				return nil, fmt.Errorf("decode schema of %s: %w", t.Name, err)
			}
			decl.Parameters = &schema
		}
		decls[i] = decl
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

func normalizeSchema(v any) any {
	switch s := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(s))
		for k, val := range s {
			if k == "type" {
				if name, ok := val.(string); ok {
					out[k] = strings.ToUpper(name)
					continue
				}
			}
			out[k] = normalizeSchema(val)
		}
		return out
	case []any:
		out := make([]any, len(s))
		for i, val := range s {
			out[i] = normalizeSchema(val)
		}
		return out
	default:
		return v
	}
}

func parseResponse(resp *genai.GenerateContentResponse) (*model.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &model.APIError{Provider: model.ProviderGemini, Err: model.ErrEmptyResponse}
	}

	candidate := resp.Candidates[0]
	msg := core.Message{Role: core.RoleAssistant}
	var text strings.Builder
	if candidate.Content != nil {
		for i, part := range candidate.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("%s-%d", part.FunctionCall.Name, i)
				}
				msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: string(args)})
			}
		}
	}
	msg.Content = text.String()

	finishReason := strings.ToLower(string(candidate.FinishReason))
	if finishReason == "" {
		finishReason = "stop"
	}

	out := &model.Response{ID: resp.ResponseID, Message: msg, FinishReason: finishReason}
	if resp.UsageMetadata != nil {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}
