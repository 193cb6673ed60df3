package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by registries, the conductor and the HTTP surface.
// Constructors wrap these sentinels so callers classify with errors.Is.
var (
	// ErrNotFound is returned when an agent id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTool is returned when a tool is already attached to an agent.
	ErrDuplicateTool = errors.New("duplicate tool")
	// ErrUnknownTool is returned when a tool name is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidInput is returned for missing or malformed required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProvider classifies completion provider failures.
	ErrProvider = errors.New("provider error")
)

// NotFound creates a formatted "not found" error for the given agent id.
func NotFound(id AgentID) error {
	return fmt.Errorf("%w: agent with id=%s", ErrNotFound, id)
}

// DuplicateTool creates a formatted "duplicate tool" error.
func DuplicateTool(id AgentID, tool string) error {
	return fmt.Errorf("%w: tool %q already assigned to agent %s", ErrDuplicateTool, tool, id)
}

// UnknownTool creates a formatted "unknown tool" error.
func UnknownTool(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

// InvalidInput creates a formatted "invalid input" error.
func InvalidInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

// ProviderError reports a failed completion provider call during a run. It
// matches both ErrProvider and the underlying cause under errors.Is.
type ProviderError struct {
	AgentID AgentID
	Model   string
	Turn    int
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (agent=%s model=%s turn=%d): %v", e.AgentID, e.Model, e.Turn, e.Err)
}

// Unwrap exposes the sentinel and the cause.
func (e *ProviderError) Unwrap() []error { return []error{ErrProvider, e.Err} }
