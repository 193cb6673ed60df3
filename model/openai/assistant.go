package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentconductor/assistant"
	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/model"
)

// AssistantBackend implements assistant.Backend on the OpenAI Assistants API.
type AssistantBackend struct {
	client *openai.Client
}

var _ assistant.Backend = (*AssistantBackend)(nil)

// NewAssistantBackend creates a backend with its own client. Only APIKey and
// BaseURL of Options are used.
func NewAssistantBackend(optFns ...func(o *Options)) *AssistantBackend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &AssistantBackend{client: newClient(opts)}
}

// NewAssistantBackendFromClient creates a backend from an existing client.
func NewAssistantBackendFromClient(client *openai.Client) *AssistantBackend {
	return &AssistantBackend{client: client}
}

// FindAssistant pages through the account's assistants for an exact name match.
func (b *AssistantBackend) FindAssistant(ctx context.Context, name string) (assistant.Assistant, bool, error) {
	iter := b.client.Beta.Assistants.ListAutoPaging(ctx, openai.BetaAssistantListParams{})
	for iter.Next() {
		a := iter.Current()
		if a.Name == name {
			return toAssistant(a), true, nil
		}
	}
	if err := iter.Err(); err != nil {
		return assistant.Assistant{}, false, wrapBackendError(err)
	}
	return assistant.Assistant{}, false, nil
}

// CreateAssistant implements assistant.Backend.
func (b *AssistantBackend) CreateAssistant(ctx context.Context, p assistant.CreateParams) (assistant.Assistant, error) {
	params := openai.BetaAssistantNewParams{
		Model: p.Model,
		Name:  openai.String(p.Name),
	}
	if p.Instructions != "" {
		params.Instructions = openai.String(p.Instructions)
	}
	a, err := b.client.Beta.Assistants.New(ctx, params)
	if err != nil {
		return assistant.Assistant{}, wrapBackendError(err)
	}
	return toAssistant(*a), nil
}

// CreateThread implements assistant.Backend.
func (b *AssistantBackend) CreateThread(ctx context.Context) (string, error) {
	th, err := b.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", wrapBackendError(err)
	}
	return th.ID, nil
}

// AddUserMessage implements assistant.Backend.
func (b *AssistantBackend) AddUserMessage(ctx context.Context, threadID, text string) error {
	_, err := b.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return wrapBackendError(err)
	}
	return nil
}

// CreateRun implements assistant.Backend.
func (b *AssistantBackend) CreateRun(ctx context.Context, threadID, assistantID string) (assistant.Run, error) {
	r, err := b.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return assistant.Run{}, wrapBackendError(err)
	}
	return toRun(r), nil
}

// GetRun implements assistant.Backend.
func (b *AssistantBackend) GetRun(ctx context.Context, threadID, runID string) (assistant.Run, error) {
	r, err := b.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return assistant.Run{}, wrapBackendError(err)
	}
	return toRun(r), nil
}

// CancelRun implements assistant.Backend.
func (b *AssistantBackend) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := b.client.Beta.Threads.Runs.Cancel(ctx, threadID, runID); err != nil {
		return wrapBackendError(err)
	}
	return nil
}

// ListMessages implements assistant.Backend. Only text content parts are kept.
func (b *AssistantBackend) ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error) {
	iter := b.client.Beta.Threads.Messages.ListAutoPaging(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderAsc,
	})
	var out []assistant.Message
	for iter.Next() {
		m := iter.Current()
		var parts []string
		for _, c := range m.Content {
			if c.Type == "text" {
				parts = append(parts, c.Text.Value)
			}
		}
		out = append(out, assistant.Message{
			ID:        m.ID,
			Role:      core.Role(m.Role),
			Content:   strings.Join(parts, "\n"),
			CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, wrapBackendError(err)
	}
	return out, nil
}

func toAssistant(a openai.Assistant) assistant.Assistant {
	return assistant.Assistant{
		ID:           a.ID,
		Name:         a.Name,
		Model:        a.Model,
		Instructions: a.Instructions,
	}
}

func toRun(r *openai.Run) assistant.Run {
	return assistant.Run{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Status:      assistant.RunStatus(r.Status),
		LastError:   r.LastError.Message,
	}
}

// wrapBackendError normalizes SDK errors; unknown thread, run or assistant
// ids also match core.ErrNotFound.
func wrapBackendError(err error) error {
	err = wrapError(err)
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", core.ErrNotFound, err)
	}
	return err
}
