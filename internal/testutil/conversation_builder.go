package testutil

import (
	"github.com/hupe1980/agentconductor/core"
)

// ConversationBuilder helps construct transcripts with fluent chaining for tests.
// Example:
//
//	conv := NewConversationBuilder().User("hi").Assistant("A", "ok").Build()
type ConversationBuilder struct {
	msgs []core.Message
}

// NewConversationBuilder creates an empty builder.
func NewConversationBuilder() *ConversationBuilder { return &ConversationBuilder{} }

// User appends a user message (chainable).
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.NewUserMessage(text))
	return b
}

// Assistant appends an assistant message spoken by name (chainable).
func (b *ConversationBuilder) Assistant(name, text string, calls ...core.ToolCall) *ConversationBuilder {
	m := core.NewAssistantMessage(name, text)
	m.ToolCalls = calls
	b.msgs = append(b.msgs, m)
	return b
}

// System appends a system message (chainable).
func (b *ConversationBuilder) System(text string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.NewSystemMessage(text))
	return b
}

// Tool appends a tool result message (chainable).
func (b *ConversationBuilder) Tool(callID, name, result string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.NewToolMessage(callID, name, result))
	return b
}

// Messages returns the messages collected so far.
func (b *ConversationBuilder) Messages() []core.Message {
	return append([]core.Message(nil), b.msgs...)
}

// Build returns a *core.Conversation holding the collected messages.
func (b *ConversationBuilder) Build() *core.Conversation {
	return core.NewConversationFromMessages(b.msgs)
}

// Roles lists the role of every message.
func Roles(msgs []core.Message) []core.Role {
	out := make([]core.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

// Speakers lists the Name of every assistant message in order.
func Speakers(msgs []core.Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Role == core.RoleAssistant {
			out = append(out, m.Name)
		}
	}
	return out
}

// Call builds a tool call.
func Call(id, name, args string) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Arguments: args}
}
