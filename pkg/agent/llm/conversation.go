package llm

import "sync"

// Conversation is the append-only turn history of one run.
type Conversation struct {
	messages []CompletionMessage
	mu       sync.RWMutex
}

// NewConversation starts a conversation, optionally with a system prompt.
func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		c.messages = append(c.messages, NewSystemMessage(systemPrompt))
	}
	return c
}

// Append adds turns in order.
func (c *Conversation) Append(msgs ...CompletionMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Messages returns a snapshot safe to hand to an endpoint.
func (c *Conversation) Messages() []CompletionMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CompletionMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Transcript flattens the conversation into plain text for token counting and archiving.
func (c *Conversation) Transcript() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []byte
	for i := range c.messages {
		m := &c.messages[i]
		out = append(out, string(m.Role)...)
		out = append(out, ": "...)
		out = append(out, m.Content...)
		for _, tc := range m.ToolCalls {
			out = append(out, "\n[tool_call "...)
			out = append(out, tc.Name...)
			out = append(out, ']')
		}
		for _, tr := range m.ToolResults {
			out = append(out, '\n')
			out = append(out, tr.Content...)
		}
		out = append(out, '\n')
	}
	return string(out)
}
