// Package event defines the realtime wire protocol between the chat widget,
// the admin dashboard, and the server. Every WebSocket frame carries a JSON
// envelope of the form {"event": "<name>", "data": {...}}.
package event

import (
	"encoding/json"
	"time"
)

// Name identifies a realtime event type.
type Name string

// Inbound events (client -> server)
const (
	JoinChat         Name = "join-chat"
	SendMessage      Name = "send-message"
	AdminSendMessage Name = "admin-send-message"
	TypingStart      Name = "typing-start"
	TypingStop       Name = "typing-stop"
)

// Outbound events (server -> client)
const (
	SessionCreated  Name = "session-created"
	ChatHistory     Name = "chat-history"
	NewMessage      Name = "new-message"
	AdminNewMessage Name = "admin-new-message"
	ChatUpdated     Name = "chat-updated"
	Error           Name = "error"
)

// Envelope is the frame wrapper for all realtime traffic.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinChatPayload resumes an existing session or requests a new one.
// SessionID is empty on first visit.
type JoinChatPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// SendMessagePayload carries a visitor message for the joined session.
type SendMessagePayload struct {
	Content string `json:"content"`
}

// AdminSendMessagePayload carries a dashboard reply into a chat. IsAI marks
// the message as AI-authored; the persisted sender becomes "ai".
type AdminSendMessagePayload struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	IsAI    bool   `json:"isAI,omitempty"`
}

// TypingPayload relays a typing indicator into a session room.
type TypingPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Sender    string `json:"sender"`
}

// SessionCreatedPayload announces the token a new visitor must persist.
type SessionCreatedPayload struct {
	SessionID string `json:"sessionId"`
}

// MessagePayload is the wire shape of a persisted message.
type MessagePayload struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	IsAI      bool      `json:"isAI"`
	CreatedAt time.Time `json:"createdAt"`
	ChatID    string    `json:"chatId,omitempty"`
}

// ChatHistoryPayload delivers the full ascending history on join.
type ChatHistoryPayload struct {
	Messages []MessagePayload `json:"messages"`
}

// ChatUpdatedPayload tells dashboards which chat list entry went stale.
type ChatUpdatedPayload struct {
	SessionID string `json:"sessionId"`
}

// ErrorInfo contains error details for the wire protocol.
type ErrorInfo struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	RetryAfter  int    `json:"retry_after,omitempty"` // milliseconds
}

// MarshalJSON formats CreatedAt as RFC3339 so the widget and dashboard see
// the same timestamp format regardless of locale.
func (m MessagePayload) MarshalJSON() ([]byte, error) {
	type alias MessagePayload
	return json.Marshal(&struct {
		alias
		CreatedAt string `json:"createdAt"`
	}{
		alias:     alias(m),
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON parses the RFC3339 CreatedAt written by MarshalJSON.
func (m *MessagePayload) UnmarshalJSON(data []byte) error {
	type alias MessagePayload
	aux := &struct {
		*alias
		CreatedAt string `json:"createdAt"`
	}{
		alias: (*alias)(m),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if aux.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, aux.CreatedAt)
		if err != nil {
			return err
		}
		m.CreatedAt = t
	}

	return nil
}

// NewEnvelope wraps a payload into a wire envelope. Marshal errors are
// returned so callers can decide whether to drop or report.
func NewEnvelope(name Name, payload interface{}) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Event: name}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: name, Data: data}, nil
}
