package core

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// AgentID identifies a registered agent. IDs are allocated by the agent
// registry from a monotonically increasing counter and are never reused.
type AgentID int64

// String returns the decimal form of the id.
func (id AgentID) String() string { return strconv.FormatInt(int64(id), 10) }

// UnmarshalJSON accepts both JSON numbers and numeric strings so HTTP clients
// may send `"agentId": 3` or `"agentId": "3"`.
func (id *AgentID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*id = 0
		return nil
	}

	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid agent id %s: %w", string(data), err)
	}

	*id = AgentID(v)

	return nil
}

// ParseAgentID parses a decimal agent id.
func ParseAgentID(s string) (AgentID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid agent id %q", ErrInvalidInput, s)
	}
	return AgentID(v), nil
}

// Agent is a named configuration the conductor can address during a run:
// the backing model identifier, the system-level instructions and the names of
// the tools it may invoke.
//
// Agents are immutable once registered except for Tools, which only grows via
// the registry's AttachTool operation. Registries hand out copies; mutate a
// returned Agent freely without affecting the stored one.
type Agent struct {
	ID           AgentID   `json:"id"`
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	Instructions string    `json:"instructions"`
	Tools        []string  `json:"tools"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasTool reports whether the named tool is attached to the agent.
func (a Agent) HasTool(name string) bool { return slices.Contains(a.Tools, name) }

// Clone returns a deep copy of the agent.
func (a Agent) Clone() Agent {
	c := a
	c.Tools = make([]string, len(a.Tools))
	copy(c.Tools, a.Tools)
	return c
}
