package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/logging"
)

// DefaultPollInterval is the delay between run status checks.
const DefaultPollInterval = 2 * time.Second

// Options configures a Service.
type Options struct {
	Logger logging.Logger
	// PollInterval is the delay between run status checks. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	RunID       string    `json:"run_id"`
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id"`
	Status      RunStatus `json:"status"`
	// Messages is the whole thread, oldest first.
	Messages []Message `json:"messages"`
}

// Reply returns the newest assistant message text.
func (r *RunResult) Reply() string {
	if r == nil {
		return ""
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == core.RoleAssistant {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Service selects the active assistant and runs it on threads. It is safe
// for concurrent use; the active assistant is shared by all callers.
type Service struct {
	backend Backend
	opts    Options
	logger  logging.Logger

	mu     sync.RWMutex
	active Assistant
	byName map[string]Assistant
}

// NewService creates a Service on top of backend.
func NewService(backend Backend, optFns ...func(o *Options)) *Service {
	opts := Options{
		Logger:       logging.NoOpLogger{},
		PollInterval: DefaultPollInterval,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := logging.OrNoOp(opts.Logger)
	if cl, ok := logger.(*logging.ConductorLogger); ok {
		logger = cl.WithComponent("assistant")
	}
	return &Service{
		backend: backend,
		opts:    opts,
		logger:  logger,
		byName:  map[string]Assistant{},
	}
}

// GetOrCreate makes the assistant called name active, creating it with the
// given instructions and model when the backend has none by that name.
// created reports whether a new assistant was made. An existing assistant
// keeps its stored instructions and model.
func (s *Service) GetOrCreate(ctx context.Context, name, instructions, model string) (Assistant, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Assistant{}, false, core.InvalidInput("assistant name is required")
	}

	s.mu.RLock()
	cached, ok := s.byName[name]
	s.mu.RUnlock()
	if ok {
		s.activate(cached)
		return cached, false, nil
	}

	found, ok, err := s.backend.FindAssistant(ctx, name)
	if err != nil {
		return Assistant{}, false, fmt.Errorf("find assistant %q: %w", name, err)
	}
	if ok {
		s.remember(found)
		s.logger.Info("assistant.found", "assistant", found.ID, "name", name)
		return found, false, nil
	}

	if strings.TrimSpace(model) == "" {
		return Assistant{}, false, core.InvalidInput("model is required to create an assistant")
	}
	created, err := s.backend.CreateAssistant(ctx, CreateParams{
		Name:         name,
		Model:        model,
		Instructions: instructions,
	})
	if err != nil {
		return Assistant{}, false, fmt.Errorf("create assistant %q: %w", name, err)
	}
	s.remember(created)
	s.logger.Info("assistant.created", "assistant", created.ID, "name", name, "model", model)
	return created, true, nil
}

// Active returns the active assistant, if any.
func (s *Service) Active() (Assistant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.active.ID != ""
}

// NewThread creates an empty thread.
func (s *Service) NewThread(ctx context.Context) (string, error) {
	id, err := s.backend.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	s.logger.Debug("assistant.thread_created", "thread", id)
	return id, nil
}

// Run appends prompt to the thread, runs the active assistant on it and
// waits for the run to finish. When ctx ends first the run is cancelled on
// the backend and ctx.Err() is returned. A run ending in any status other
// than completed yields a *RunError.
func (s *Service) Run(ctx context.Context, threadID, prompt string) (*RunResult, error) {
	asst, ok := s.Active()
	if !ok {
		return nil, ErrNoAssistant
	}
	if strings.TrimSpace(threadID) == "" {
		return nil, core.InvalidInput("thread id is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, core.InvalidInput("prompt is required")
	}

	if err := s.backend.AddUserMessage(ctx, threadID, prompt); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	run, err := s.backend.CreateRun(ctx, threadID, asst.ID)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	logger := s.logger
	if cl, ok := logger.(*logging.ConductorLogger); ok {
		logger = cl.WithRun(run.ID)
	}
	logger.Info("assistant.run_started", "thread", threadID, "assistant", asst.ID)

	start := time.Now()
	run, err = s.wait(ctx, run)
	if err != nil {
		if ctx.Err() != nil {
			s.cancel(ctx, logger, run)
		}
		logger.Warn("assistant.run_aborted", "thread", threadID, "error", err)
		return nil, err
	}
	if run.Status != RunCompleted {
		logger.Warn("assistant.run_failed", "status", string(run.Status), "error", run.LastError)
		return nil, &RunError{RunID: run.ID, Status: run.Status, Message: run.LastError}
	}

	msgs, err := s.backend.ListMessages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	logger.Info("assistant.run_completed", "thread", threadID, "messages", len(msgs), "duration", time.Since(start))
	return &RunResult{
		RunID:       run.ID,
		ThreadID:    threadID,
		AssistantID: asst.ID,
		Status:      run.Status,
		Messages:    msgs,
	}, nil
}

// Messages lists a thread, oldest first.
func (s *Service) Messages(ctx context.Context, threadID string) ([]Message, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, core.InvalidInput("thread id is required")
	}
	return s.backend.ListMessages(ctx, threadID)
}

func (s *Service) wait(ctx context.Context, run Run) (Run, error) {
	if run.Status.Terminal() {
		return run, nil
	}
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
		next, err := s.backend.GetRun(ctx, run.ThreadID, run.ID)
		if err != nil {
			if ctx.Err() != nil {
				return run, ctx.Err()
			}
			return run, fmt.Errorf("get run %s: %w", run.ID, err)
		}
		run = next
		if run.Status.Terminal() {
			return run, nil
		}
	}
}

// cancel asks the backend to stop an abandoned run. It outlives ctx so the
// request still goes out after the caller gave up.
func (s *Service) cancel(ctx context.Context, logger logging.Logger, run Run) {
	cctx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()
	if err := s.backend.CancelRun(cctx, run.ThreadID, run.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
		logger.Warn("assistant.cancel_failed", "error", err)
	}
}

func (s *Service) remember(a Assistant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[a.Name] = a
	s.active = a
}

func (s *Service) activate(a Assistant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = a
}
