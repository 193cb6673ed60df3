package core

import (
	"encoding/json"
	"sync"
)

// Conversation is the ordered, append-only transcript of a run. It is seeded
// with exactly one user message and grows only through Append. It is safe for
// concurrent access: a run appends while observers (loggers, HTTP handlers)
// may read snapshots.
//
// Contract:
//   - Messages are never rewritten or reordered once appended
//   - Messages returns a copy; callers cannot mutate the transcript
//   - JSON encoding preserves order and every message field
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation creates a conversation seeded with a single user message.
func NewConversation(userInput string) *Conversation {
	return &Conversation{messages: []Message{NewUserMessage(userInput)}}
}

// NewConversationFromMessages rebuilds a conversation from a previously
// recorded transcript (e.g. an archived run). The slice is copied.
func NewConversationFromMessages(msgs []Message) *Conversation {
	c := &Conversation{messages: make([]Message, 0, len(msgs))}
	for _, m := range msgs {
		c.messages = append(c.messages, m.Clone())
	}
	return c
}

// Append adds messages to the end of the transcript.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.messages = append(c.messages, m.Clone())
	}
}

// Messages returns a copy of the full transcript.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages in the transcript.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Count returns how many messages carry the given role.
func (c *Conversation) Count(role Role) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, m := range c.messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// Last returns the most recent message, or false for an empty transcript.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1].Clone(), true
}

// Clone returns an independent copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	return NewConversationFromMessages(c.Messages())
}

type conversationJSON struct {
	Messages []Message `json:"messages"`
}

// MarshalJSON encodes the transcript as {"messages":[...]}.
func (c *Conversation) MarshalJSON() ([]byte, error) {
	return json.Marshal(conversationJSON{Messages: c.Messages()})
}

// UnmarshalJSON replaces the transcript with the decoded messages.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	var v conversationJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = v.Messages
	if c.messages == nil {
		c.messages = []Message{}
	}
	return nil
}
