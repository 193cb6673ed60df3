package core

import "github.com/google/uuid"

// NewID generates a new unique identifier for runs and tool calls.
func NewID() string { return uuid.NewString() }
