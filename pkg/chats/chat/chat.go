// Package chat holds the running history of a conversation.
package chat

import (
	"github.com/germanamz/taskbot/pkg/chats/message"
	"github.com/germanamz/taskbot/pkg/chats/role"
)

// Chat is an append-only message history. The zero value is ready to use.
// It is not safe for concurrent use.
type Chat struct {
	messages []message.Message
}

// New returns a Chat seeded with msgs.
func New(msgs ...message.Message) *Chat {
	return &Chat{messages: msgs}
}

// Append adds msgs at the end of the history.
func (c *Chat) Append(msgs ...message.Message) {
	c.messages = append(c.messages, msgs...)
}

// Len returns the number of messages.
func (c *Chat) Len() int { return len(c.messages) }

// Messages returns a copy of the history, safe to extend when building a
// request.
func (c *Chat) Messages() []message.Message {
	return append([]message.Message(nil), c.messages...)
}

// Turns counts the user messages, one per question asked.
func (c *Chat) Turns() int {
	n := 0
	for _, m := range c.messages {
		if m.Role == role.User {
			n++
		}
	}
	return n
}
