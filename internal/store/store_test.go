package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/real-rm/supportchat/internal/constants"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("operation timeout exceeded"), true},
		{"io timeout", errors.New("read tcp: i/o timeout"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"server selection", errors.New("server selection timeout"), true},
		{"no reachable servers", errors.New("no reachable servers"), true},
		{"connection pool", errors.New("connection pool cleared"), true},
		{"socket", errors.New("socket was unexpectedly closed"), true},
		{"duplicate key", errors.New("E11000 duplicate key error"), false},
		{"validation failure", errors.New("document failed validation"), false},
		{"not found", errors.New("chat not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableError(tt.err))
		})
	}
}

func TestChatFromDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	created := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	modified := created.Add(time.Hour)

	doc := &ChatDocument{
		ID:         oid,
		SessionID:  "session_1710496800000_abc123def",
		UserIP:     "203.0.113.7",
		UserAgent:  "Mozilla/5.0",
		Status:     constants.ChatStatusActive,
		AIEnabled:  true,
		CreatedAt:  created,
		ModifiedAt: modified,
	}

	chat := chatFromDocument(doc)

	assert.Equal(t, oid, chat.ID)
	assert.Equal(t, "session_1710496800000_abc123def", chat.SessionID)
	assert.Equal(t, "203.0.113.7", chat.UserIP)
	assert.Equal(t, "Mozilla/5.0", chat.UserAgent)
	assert.Equal(t, constants.ChatStatusActive, chat.Status)
	assert.True(t, chat.AIEnabled)
	assert.Equal(t, created, chat.CreatedAt)
	assert.Equal(t, modified, chat.UpdatedAt)
}

func TestMessageFromDocument(t *testing.T) {
	s := &Store{} // No encryption key: content passes through

	oid := primitive.NewObjectID()
	chatID := primitive.NewObjectID()
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	doc := &MessageDocument{
		ID:      oid,
		ChatID:  chatID,
		Content: "How do I reset my password?",
		Sender:  constants.SenderUser,
		IsAI:    false,
		Ts:      ts,
	}

	msg := s.messageFromDocument(doc)

	assert.Equal(t, oid, msg.ID)
	assert.Equal(t, chatID, msg.ChatID)
	assert.Equal(t, "How do I reset my password?", msg.Content)
	assert.Equal(t, constants.SenderUser, msg.Sender)
	assert.False(t, msg.IsAI)
	assert.Equal(t, ts, msg.CreatedAt)
	assert.Empty(t, msg.SessionID)
}

func TestMessageFromDocument_DecryptsContent(t *testing.T) {
	s := newEncryptingStore(testEncryptionKey)

	encrypted, err := s.encrypt("encrypted at rest")
	assert.NoError(t, err)

	doc := &MessageDocument{
		ID:      primitive.NewObjectID(),
		ChatID:  primitive.NewObjectID(),
		Content: encrypted,
		Sender:  constants.SenderAdmin,
		Ts:      time.Now(),
	}

	msg := s.messageFromDocument(doc)
	assert.Equal(t, "encrypted at rest", msg.Content)
}
