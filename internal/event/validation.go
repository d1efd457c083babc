package event

import (
	"fmt"
	"strings"

	"github.com/real-rm/supportchat/internal/constants"
)

// Validation limits for inbound fields
const (
	MaxContentLength   = constants.MaxMessageLength
	MaxSessionIDLength = 128
	MaxChatIDLength    = 64
	MaxUserAgentLength = 512
	MaxSenderLength    = 16
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// isInbound reports whether the event name is one a client may send.
func isInbound(n Name) bool {
	switch n {
	case JoinChat, SendMessage, AdminSendMessage, TypingStart, TypingStop:
		return true
	default:
		return false
	}
}

// Validate checks an inbound envelope before dispatch. Outbound-only event
// names arriving from a client are rejected here.
func (e *Envelope) Validate() error {
	if e.Event == "" {
		return &ValidationError{Field: "event", Message: "event is required"}
	}
	if !isInbound(e.Event) {
		return &ValidationError{Field: "event", Message: fmt.Sprintf("unknown event: %s", e.Event)}
	}
	return nil
}

// Validate checks join-chat fields. An empty SessionID is valid (first visit).
func (p *JoinChatPayload) Validate() error {
	if len(p.SessionID) > MaxSessionIDLength {
		return &ValidationError{
			Field:   "sessionId",
			Message: fmt.Sprintf("sessionId exceeds maximum length of %d characters", MaxSessionIDLength),
		}
	}
	if len(p.UserAgent) > MaxUserAgentLength {
		return &ValidationError{
			Field:   "userAgent",
			Message: fmt.Sprintf("userAgent exceeds maximum length of %d characters", MaxUserAgentLength),
		}
	}
	return nil
}

// Validate checks send-message fields.
func (p *SendMessagePayload) Validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	if len(p.Content) > MaxContentLength {
		return &ValidationError{
			Field:   "content",
			Message: fmt.Sprintf("content exceeds maximum length of %d characters", MaxContentLength),
		}
	}
	return nil
}

// Validate checks admin-send-message fields.
func (p *AdminSendMessagePayload) Validate() error {
	if p.ChatID == "" {
		return &ValidationError{Field: "chatId", Message: "chatId is required"}
	}
	if len(p.ChatID) > MaxChatIDLength {
		return &ValidationError{
			Field:   "chatId",
			Message: fmt.Sprintf("chatId exceeds maximum length of %d characters", MaxChatIDLength),
		}
	}
	if strings.TrimSpace(p.Content) == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	if len(p.Content) > MaxContentLength {
		return &ValidationError{
			Field:   "content",
			Message: fmt.Sprintf("content exceeds maximum length of %d characters", MaxContentLength),
		}
	}
	return nil
}

// Validate checks typing relay fields.
func (p *TypingPayload) Validate() error {
	if len(p.SessionID) > MaxSessionIDLength {
		return &ValidationError{
			Field:   "sessionId",
			Message: fmt.Sprintf("sessionId exceeds maximum length of %d characters", MaxSessionIDLength),
		}
	}
	if len(p.Sender) > MaxSenderLength {
		return &ValidationError{
			Field:   "sender",
			Message: fmt.Sprintf("sender exceeds maximum length of %d characters", MaxSenderLength),
		}
	}
	return nil
}

// Sanitize cleans visitor-entered text before persistence.
func (p *SendMessagePayload) Sanitize() {
	p.Content = sanitizeString(p.Content)
}

// Sanitize cleans dashboard-entered text before persistence.
func (p *AdminSendMessagePayload) Sanitize() {
	p.ChatID = sanitizeString(p.ChatID)
	p.Content = sanitizeString(p.Content)
}

// Sanitize cleans the resume token and user agent.
func (p *JoinChatPayload) Sanitize() {
	p.SessionID = sanitizeString(p.SessionID)
	p.UserAgent = sanitizeString(p.UserAgent)
}

// sanitizeString removes null bytes and trims whitespace. HTML escaping is
// NOT applied here — it belongs at render time only; escaping at ingestion
// garbles content fed to the AI responder (e.g. "<" becomes "&lt;").
func sanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	return s
}
