package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentconductor/conductor"
	"github.com/hupe1980/agentconductor/core"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Transcript is the archived form of a finished run.
type Transcript struct {
	ID         string         `json:"id"`
	Status     core.RunStatus `json:"status"`
	AgentIDs   []core.AgentID `json:"agent_ids"`
	TurnsTaken int            `json:"turns"`
	Messages   []core.Message `json:"messages"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// NewTranscript captures a run result.
func NewTranscript(res *conductor.Result, agentIDs []core.AgentID) *Transcript {
	return &Transcript{
		ID:         res.RunID,
		Status:     res.Status,
		AgentIDs:   append([]core.AgentID(nil), agentIDs...),
		TurnsTaken: res.TurnsTaken,
		Messages:   res.Messages(),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
}

// Clone returns a deep copy.
func (t *Transcript) Clone() *Transcript {
	c := *t
	c.AgentIDs = append([]core.AgentID(nil), t.AgentIDs...)
	c.Messages = make([]core.Message, len(t.Messages))
	for i, m := range t.Messages {
		c.Messages[i] = m.Clone()
	}
	return &c
}

// TranscriptStore persists transcripts.
type TranscriptStore interface {
	// Save stores or replaces the transcript with t.ID.
	Save(ctx context.Context, t *Transcript) error
	// Get returns the transcript or an error matching core.ErrNotFound.
	Get(ctx context.Context, id string) (*Transcript, error)
	// List returns up to limit transcripts, most recently finished first.
	// A limit below one returns all of them.
	List(ctx context.Context, limit int) ([]*Transcript, error)
	Close() error
}

// NotFound creates an error for an unknown transcript id.
func NotFound(id string) error {
	return fmt.Errorf("%w: conversation with id=%s", core.ErrNotFound, id)
}

func validate(t *Transcript) error {
	if t == nil || t.ID == "" {
		return core.InvalidInput("transcript id is required")
	}
	return nil
}
