package domain

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a chat session log.
type Message struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	PersonaTag string    `json:"persona,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChatReply is the backend response to a chat send.
type ChatReply struct {
	Success      Flag   `json:"success"`
	Message      string `json:"message"`
	DesignerType string `json:"designer_type,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HistoryEntry is a persisted message as the backend returns it. Older
// entries carry neither a persona nor a timestamp.
type HistoryEntry struct {
	Role         Role   `json:"role"`
	Content      string `json:"content"`
	DesignerType string `json:"designerType,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// HistoryReply is the backend response to a history request.
type HistoryReply struct {
	Success Flag           `json:"success"`
	History []HistoryEntry `json:"history"`
	Error   string         `json:"error,omitempty"`
}

// ClearReply is the backend response to a history deletion.
type ClearReply struct {
	Success Flag   `json:"success"`
	Error   string `json:"error,omitempty"`
}
