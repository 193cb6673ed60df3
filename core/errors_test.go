package core

import (
	"context"
	"errors"
	"testing"
)

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
		msg      string
	}{
		{NotFound(9), ErrNotFound, "not found: agent with id=9"},
		{DuplicateTool(1, "add"), ErrDuplicateTool, `duplicate tool: tool "add" already assigned to agent 1`},
		{UnknownTool("nope"), ErrUnknownTool, "unknown tool: nope"},
		{InvalidInput("name and model are required"), ErrInvalidInput, "invalid input: name and model are required"},
	}

	for _, tt := range tests {
		if !errors.Is(tt.err, tt.sentinel) {
			t.Errorf("expected %v to wrap %v", tt.err, tt.sentinel)
		}
		if tt.err.Error() != tt.msg {
			t.Errorf("expected message %q, got %q", tt.msg, tt.err.Error())
		}
	}
}

func TestProviderError_MatchesSentinelAndCause(t *testing.T) {
	err := error(&ProviderError{AgentID: 2, Model: "m1", Turn: 1, Err: context.DeadlineExceeded})

	if !errors.Is(err, ErrProvider) {
		t.Error("expected ErrProvider")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to be preserved")
	}

	var pe *ProviderError
	if !errors.As(err, &pe) || pe.AgentID != 2 {
		t.Errorf("expected *ProviderError, got %T", err)
	}
}
