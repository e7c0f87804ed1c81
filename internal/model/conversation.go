package model

import (
	"strings"
	"time"
)

// Message is one entry of a session's chat history.
type Message struct {
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationContext is what the router sees: history plus session identifiers.
type ConversationContext struct {
	SessionID string
	UserID    string
	Messages  []Message
}

// LatestUserMessage returns the last message when it was sent by the user and has content.
func (c ConversationContext) LatestUserMessage() (string, bool) {
	if len(c.Messages) == 0 {
		return "", false
	}
	last := c.Messages[len(c.Messages)-1]
	if last.Role != RoleUser {
		return "", false
	}
	content := strings.TrimSpace(last.Content)
	return content, content != ""
}
