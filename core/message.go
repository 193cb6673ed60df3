package core

// Role tags the author category of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	default:
		return false
	}
}

// ToolCall describes a tool / function invocation requested by a model.
type ToolCall struct {
	ID        string `json:"id,omitempty"`        // Provider supplied correlation id
	Name      string `json:"name"`                // Tool name
	Arguments string `json:"arguments,omitempty"` // Serialized JSON object
}

// Message is one immutable entry of a conversation transcript.
//
// Name carries the speaking agent for assistant messages and the tool name for
// tool messages. ToolCalls is only set on assistant messages whose response
// requested tool execution; ToolCallID links a tool message back to the call
// it answers.
type Message struct {
	Role       Role       `json:"role"`
	Name       string     `json:"name,omitempty"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// NewAssistantMessage creates an assistant message spoken by the named agent.
func NewAssistantMessage(name, text string) Message {
	return Message{Role: RoleAssistant, Name: name, Content: text}
}

// NewToolMessage records the textual result of a tool call.
func NewToolMessage(callID, toolName, result string) Message {
	return Message{Role: RoleTool, Name: toolName, Content: result, ToolCallID: callID}
}

// HasToolCalls reports whether the message requests any tool execution.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	c := m
	if m.ToolCalls != nil {
		c.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(c.ToolCalls, m.ToolCalls)
	}
	return c
}
