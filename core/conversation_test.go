package core

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversation_SeedsSingleUserMessage(t *testing.T) {
	c := NewConversation("hi")

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestConversation_AppendPreservesOrder(t *testing.T) {
	c := NewConversation("hi")
	c.Append(NewAssistantMessage("A", "one"), NewAssistantMessage("B", "two"))
	c.Append(NewSystemMessage("three"))

	msgs := c.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"hi", "one", "two", "three"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content, msgs[3].Content})
	assert.Equal(t, 2, c.Count(RoleAssistant))

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, RoleSystem, last.Role)
}

func TestConversation_MessagesReturnsCopy(t *testing.T) {
	c := NewConversation("hi")
	c.Append(Message{Role: RoleAssistant, Name: "A", ToolCalls: []ToolCall{{ID: "1", Name: "add"}}})

	msgs := c.Messages()
	msgs[0].Content = "changed"
	msgs[1].ToolCalls[0].Name = "changed"

	again := c.Messages()
	assert.Equal(t, "hi", again[0].Content)
	assert.Equal(t, "add", again[1].ToolCalls[0].Name)
}

func TestConversation_JSONRoundTrip(t *testing.T) {
	c := NewConversation("hi")
	c.Append(
		Message{Role: RoleAssistant, Name: "A", Content: "calling", ToolCalls: []ToolCall{{ID: "c1", Name: "add", Arguments: `{"a":1,"b":2}`}}},
		NewToolMessage("c1", "add", "3"),
		NewSystemMessage("Agent with id=9 not found. Stopping."),
	)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded Conversation
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, c.Messages(), decoded.Messages())
}

func TestConversation_ConcurrentReadersDuringAppend(t *testing.T) {
	c := NewConversation("hi")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Messages()
				_ = c.Len()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		c.Append(NewAssistantMessage("A", "x"))
	}
	wg.Wait()

	assert.Equal(t, 101, c.Len())
}
