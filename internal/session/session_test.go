package session

import (
	"errors"
	"testing"

	"github.com/real-rm/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/real-rm/supportchat/internal/constants"
	"github.com/real-rm/supportchat/internal/store"
)

// mockChatStore implements ChatStore in memory for resolver tests
type mockChatStore struct {
	chats     map[string]*store.Chat
	findErr   error
	createErr error
	created   []string
}

func newMockChatStore() *mockChatStore {
	return &mockChatStore{chats: make(map[string]*store.Chat)}
}

func (m *mockChatStore) FindChatBySessionID(sessionID string) (*store.Chat, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	chat, ok := m.chats[sessionID]
	if !ok {
		return nil, store.ErrChatNotFound
	}
	return chat, nil
}

func (m *mockChatStore) CreateChat(sessionID, userIP, userAgent string) (*store.Chat, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	chat := &store.Chat{
		ID:        primitive.NewObjectID(),
		SessionID: sessionID,
		UserIP:    userIP,
		UserAgent: userAgent,
		Status:    constants.ChatStatusActive,
		AIEnabled: true,
	}
	m.chats[sessionID] = chat
	m.created = append(m.created, sessionID)
	return chat, nil
}

func newTestResolver(t *testing.T, chats ChatStore) *Resolver {
	t.Helper()

	logger, err := golog.InitLog(golog.LogConfig{
		Level:          "error",
		StandardOutput: false,
		Dir:            t.TempDir(),
		InfoFile:       "info.log",
		WarnFile:       "warn.log",
		ErrorFile:      "error.log",
	})
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	return NewResolver(chats, logger)
}

func TestResolve_ReusesExistingChat(t *testing.T) {
	chats := newMockChatStore()
	existing, err := chats.CreateChat("session_1710496800000_abc123def", "203.0.113.7", "Mozilla/5.0")
	require.NoError(t, err)
	chats.created = nil

	r := newTestResolver(t, chats)

	chat, created, err := r.Resolve("session_1710496800000_abc123def", "198.51.100.1", "curl/8.0")

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, chat.ID)
	assert.Empty(t, chats.created, "no new chat should be created for a known token")
}

func TestResolve_CreatesChatForNewVisitor(t *testing.T) {
	chats := newMockChatStore()
	r := newTestResolver(t, chats)

	chat, created, err := r.Resolve("", "203.0.113.7", "Mozilla/5.0")

	require.NoError(t, err)
	assert.True(t, created)
	assert.Regexp(t, `^session_\d+_[0-9a-z]{9}$`, chat.SessionID)
	assert.Equal(t, "203.0.113.7", chat.UserIP)
	assert.Equal(t, "Mozilla/5.0", chat.UserAgent)
}

func TestResolve_UnknownTokenGetsFreshChat(t *testing.T) {
	chats := newMockChatStore()
	r := newTestResolver(t, chats)

	chat, created, err := r.Resolve("session_0_nosuchchat", "", "")

	require.NoError(t, err)
	assert.True(t, created)
	// The stale token is abandoned, not reused
	assert.NotEqual(t, "session_0_nosuchchat", chat.SessionID)
}

func TestResolve_LookupErrorPropagates(t *testing.T) {
	chats := newMockChatStore()
	chats.findErr = errors.New("server selection timeout")
	r := newTestResolver(t, chats)

	_, _, err := r.Resolve("session_1710496800000_abc123def", "", "")

	require.Error(t, err)
	assert.Empty(t, chats.created)
}

func TestResolve_CreateErrorPropagates(t *testing.T) {
	chats := newMockChatStore()
	chats.createErr = errors.New("connection refused")
	r := newTestResolver(t, chats)

	_, _, err := r.Resolve("", "", "")

	require.Error(t, err)
}

func TestGenerateSessionID_Format(t *testing.T) {
	id, err := GenerateSessionID()

	require.NoError(t, err)
	assert.Regexp(t, `^session_\d+_[0-9a-z]{9}$`, id)
}
