package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentconductor/core"
)

// RunStatus is the lifecycle state of an assistant run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunFailed         RunStatus = "failed"
	RunCompleted      RunStatus = "completed"
	RunIncomplete     RunStatus = "incomplete"
	RunExpired        RunStatus = "expired"
)

// Terminal reports whether polling can stop. requires_action counts as
// terminal: assistants here have no tools to submit outputs for.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired, RunIncomplete, RunRequiresAction:
		return true
	default:
		return false
	}
}

// Assistant is a named, model-bound set of instructions held by a backend.
type Assistant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	Instructions string `json:"instructions"`
}

// CreateParams describes a new assistant.
type CreateParams struct {
	Name         string
	Model        string
	Instructions string
}

// Run is a snapshot of one run.
type Run struct {
	ID          string
	ThreadID    string
	AssistantID string
	Status      RunStatus
	// LastError is the backend's failure message for failed runs.
	LastError string
}

// Message is one entry of a thread.
type Message struct {
	ID        string    `json:"id"`
	Role      core.Role `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Backend is the hosted assistant API.
type Backend interface {
	// FindAssistant looks an assistant up by exact name.
	FindAssistant(ctx context.Context, name string) (Assistant, bool, error)
	CreateAssistant(ctx context.Context, p CreateParams) (Assistant, error)
	CreateThread(ctx context.Context) (string, error)
	// AddUserMessage appends a user message to a thread.
	AddUserMessage(ctx context.Context, threadID, text string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	// ListMessages returns the thread oldest first.
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

// ErrNoAssistant is returned by Service.Run before any assistant was selected.
var ErrNoAssistant = fmt.Errorf("%w: no assistant has been created yet", core.ErrInvalidInput)

// ThreadNotFound reports an unknown thread id.
func ThreadNotFound(id string) error {
	return fmt.Errorf("%w: thread with id=%s", core.ErrNotFound, id)
}

// RunError reports a run that ended in a status other than completed.
type RunError struct {
	RunID   string
	Status  RunStatus
	Message string
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistant run %s ended %s: %s", e.RunID, e.Status, e.Message)
	}
	return fmt.Sprintf("assistant run %s ended %s", e.RunID, e.Status)
}

// IsRunError reports whether err is a *RunError.
func IsRunError(err error) bool {
	var re *RunError
	return errors.As(err, &re)
}
