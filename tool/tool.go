// Package tool implements the tool registry: a closed name to function table
// that agents may call through their completion provider. Tools carry a JSON
// schema used both for argument validation and for the provider request.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentconductor/internal/util"
)

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodePanic      = "PANIC"
)

// Tool is a named capability an agent can invoke.
//
// Implementations must be safe for concurrent use; the same tool may be
// invoked by several runs at once.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description shown to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool. The returned string becomes the content of the
	// tool message appended to the transcript.
	Call(ctx context.Context, params map[string]any) (string, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes Details when it is itself an error.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Definition is the provider-facing description of a tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// DefinitionOf returns the Definition of t.
func DefinitionOf(t Tool) Definition {
	return Definition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
}
