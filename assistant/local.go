package assistant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/model"
)

// LocalBackend keeps assistants, threads and runs in memory and answers runs
// with a model.Provider. Each run completes the thread once in the
// background, so callers observe the same queued → completed lifecycle as
// with a hosted API.
type LocalBackend struct {
	provider model.Provider
	now      func() time.Time

	mu         sync.Mutex
	assistants map[string]Assistant
	threads    map[string][]Message
	runs       map[string]*localRun
}

type localRun struct {
	run    Run
	cancel context.CancelFunc
}

// NewLocalBackend returns an in-memory Backend answering with provider.
func NewLocalBackend(provider model.Provider) *LocalBackend {
	return &LocalBackend{
		provider:   provider,
		now:        time.Now,
		assistants: map[string]Assistant{},
		threads:    map[string][]Message{},
		runs:       map[string]*localRun{},
	}
}

// FindAssistant implements Backend.
func (b *LocalBackend) FindAssistant(_ context.Context, name string) (Assistant, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.assistants {
		if a.Name == name {
			return a, true, nil
		}
	}
	return Assistant{}, false, nil
}

// CreateAssistant implements Backend.
func (b *LocalBackend) CreateAssistant(_ context.Context, p CreateParams) (Assistant, error) {
	a := Assistant{
		ID:           "asst_" + core.NewID(),
		Name:         p.Name,
		Model:        p.Model,
		Instructions: p.Instructions,
	}
	b.mu.Lock()
	b.assistants[a.ID] = a
	b.mu.Unlock()
	return a, nil
}

// CreateThread implements Backend.
func (b *LocalBackend) CreateThread(_ context.Context) (string, error) {
	id := "thread_" + core.NewID()
	b.mu.Lock()
	b.threads[id] = nil
	b.mu.Unlock()
	return id, nil
}

// AddUserMessage implements Backend.
func (b *LocalBackend) AddUserMessage(_ context.Context, threadID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.threads[threadID]; !ok {
		return ThreadNotFound(threadID)
	}
	b.appendLocked(threadID, core.RoleUser, text)
	return nil
}

// CreateRun implements Backend. The run is queued and executed in its own
// goroutine; it is independent of ctx and ends via CancelRun.
func (b *LocalBackend) CreateRun(_ context.Context, threadID, assistantID string) (Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.threads[threadID]; !ok {
		return Run{}, ThreadNotFound(threadID)
	}
	asst, ok := b.assistants[assistantID]
	if !ok {
		return Run{}, fmt.Errorf("%w: assistant with id=%s", core.ErrNotFound, assistantID)
	}
	for _, r := range b.runs {
		if r.run.ThreadID == threadID && !r.run.Status.Terminal() && r.run.Status != RunCancelling {
			return Run{}, core.InvalidInput(fmt.Sprintf("thread %s already has an active run %s", threadID, r.run.ID))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	lr := &localRun{
		run: Run{
			ID:          "run_" + core.NewID(),
			ThreadID:    threadID,
			AssistantID: assistantID,
			Status:      RunQueued,
		},
		cancel: cancel,
	}
	b.runs[lr.run.ID] = lr
	req := model.Request{
		Model:    asst.Model,
		Messages: b.transcriptLocked(asst, threadID),
	}
	go b.execute(ctx, lr.run.ID, req)
	return lr.run, nil
}

// GetRun implements Backend.
func (b *LocalBackend) GetRun(_ context.Context, threadID, runID string) (Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lr, ok := b.runs[runID]
	if !ok || lr.run.ThreadID != threadID {
		return Run{}, fmt.Errorf("%w: run with id=%s", core.ErrNotFound, runID)
	}
	return lr.run, nil
}

// CancelRun implements Backend. Cancelling a finished run is a no-op.
func (b *LocalBackend) CancelRun(_ context.Context, threadID, runID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	lr, ok := b.runs[runID]
	if !ok || lr.run.ThreadID != threadID {
		return fmt.Errorf("%w: run with id=%s", core.ErrNotFound, runID)
	}
	if lr.run.Status.Terminal() {
		return nil
	}
	lr.run.Status = RunCancelling
	lr.cancel()
	return nil
}

// ListMessages implements Backend.
func (b *LocalBackend) ListMessages(_ context.Context, threadID string) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs, ok := b.threads[threadID]
	if !ok {
		return nil, ThreadNotFound(threadID)
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (b *LocalBackend) execute(ctx context.Context, runID string, req model.Request) {
	b.setStatus(runID, RunInProgress, "")

	resp, err := b.provider.Complete(ctx, req)
	if err == nil && resp == nil {
		err = model.ErrEmptyResponse
	}

	cancelled := ctx.Err() != nil

	b.mu.Lock()
	defer b.mu.Unlock()
	lr := b.runs[runID]
	lr.cancel()
	switch {
	case cancelled:
		lr.run.Status = RunCancelled
	case err != nil:
		lr.run.Status = RunFailed
		lr.run.LastError = err.Error()
	case resp.Message.HasToolCalls():
		lr.run.Status = RunRequiresAction
	default:
		b.appendLocked(lr.run.ThreadID, core.RoleAssistant, resp.Text())
		lr.run.Status = RunCompleted
	}
}

func (b *LocalBackend) setStatus(runID string, st RunStatus, lastErr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lr := b.runs[runID]
	if lr.run.Status == RunCancelling {
		return
	}
	lr.run.Status = st
	lr.run.LastError = lastErr
}

func (b *LocalBackend) transcriptLocked(asst Assistant, threadID string) []core.Message {
	thread := b.threads[threadID]
	msgs := make([]core.Message, 0, len(thread)+1)
	if asst.Instructions != "" {
		msgs = append(msgs, core.NewSystemMessage(asst.Instructions))
	}
	for _, m := range thread {
		if m.Role == core.RoleAssistant {
			msgs = append(msgs, core.NewAssistantMessage(asst.Name, m.Content))
			continue
		}
		msgs = append(msgs, core.NewUserMessage(m.Content))
	}
	return msgs
}

func (b *LocalBackend) appendLocked(threadID string, role core.Role, text string) {
	b.threads[threadID] = append(b.threads[threadID], Message{
		ID:        "msg_" + core.NewID(),
		Role:      role,
		Content:   text,
		CreatedAt: b.now(),
	})
}
