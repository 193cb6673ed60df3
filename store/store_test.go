package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentconductor/conductor"
	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/internal/testutil"
)

var (
	_ TranscriptStore = (*InMemoryStore)(nil)
	_ TranscriptStore = (*RedisStore)(nil)
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleTranscript(id string, finished time.Time) *Transcript {
	return &Transcript{
		ID:         id,
		Status:     core.StatusCompleted,
		AgentIDs:   []core.AgentID{1, 2},
		TurnsTaken: 1,
		Messages: testutil.NewConversationBuilder().
			User("hi").
			Assistant("A", "", testutil.Call("c1", "add", `{"a":1,"b":2}`)).
			Tool("c1", "add", "3").
			Messages(),
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s TranscriptStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("get unknown", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("save rejects empty id", func(t *testing.T) {
		assert.ErrorIs(t, s.Save(ctx, &Transcript{}), core.ErrInvalidInput)
		assert.ErrorIs(t, s.Save(ctx, nil), core.ErrInvalidInput)
	})

	t.Run("save and get", func(t *testing.T) {
		in := sampleTranscript("run-1", epoch)
		require.NoError(t, s.Save(ctx, in))

		got, err := s.Get(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, in.ID, got.ID)
		assert.Equal(t, in.Status, got.Status)
		assert.Equal(t, in.AgentIDs, got.AgentIDs)
		assert.Equal(t, in.Messages, got.Messages)
		assert.True(t, in.FinishedAt.Equal(got.FinishedAt))
	})

	t.Run("list newest first with limit", func(t *testing.T) {
		for i := 2; i <= 4; i++ {
			require.NoError(t, s.Save(ctx, sampleTranscript(fmt.Sprintf("run-%d", i), epoch.Add(time.Duration(i)*time.Minute))))
		}

		all, err := s.List(ctx, 0)
		require.NoError(t, err)
		ids := make([]string, len(all))
		for i, tr := range all {
			ids[i] = tr.ID
		}
		assert.Equal(t, []string{"run-4", "run-3", "run-2", "run-1"}, ids)

		two, err := s.List(ctx, 2)
		require.NoError(t, err)
		require.Len(t, two, 2)
		assert.Equal(t, "run-4", two[0].ID)
	})

	t.Run("save replaces", func(t *testing.T) {
		tr := sampleTranscript("run-1", epoch)
		tr.Status = core.StatusCancelled
		require.NoError(t, s.Save(ctx, tr))

		got, err := s.Get(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, core.StatusCancelled, got.Status)

		all, err := s.List(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("closed", func(t *testing.T) {
		require.NoError(t, s.Close())
		_, err := s.Get(ctx, "run-1")
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, s.Save(ctx, sampleTranscript("x", epoch)), ErrClosed)
	})
}

func TestNewTranscript(t *testing.T) {
	res := &conductor.Result{
		RunID:        "r",
		Status:       core.StatusStoppedMissingAgent,
		Conversation: core.NewConversation("hi"),
		TurnsTaken:   0,
		StartedAt:    epoch,
		FinishedAt:   epoch.Add(time.Second),
	}
	ids := []core.AgentID{9}
	tr := NewTranscript(res, ids)
	ids[0] = 1

	assert.Equal(t, "r", tr.ID)
	assert.Equal(t, core.StatusStoppedMissingAgent, tr.Status)
	assert.Equal(t, []core.AgentID{9}, tr.AgentIDs)
	assert.Equal(t, []core.Message{core.NewUserMessage("hi")}, tr.Messages)
}

func TestTranscript_CloneIsDeep(t *testing.T) {
	tr := sampleTranscript("a", epoch)
	c := tr.Clone()
	c.Messages[1].ToolCalls[0].Name = "changed"
	c.AgentIDs[0] = 42

	assert.Equal(t, "add", tr.Messages[1].ToolCalls[0].Name)
	assert.Equal(t, core.AgentID(1), tr.AgentIDs[0])
}
