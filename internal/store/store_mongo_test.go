package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/real-rm/supportchat/internal/constants"
)

// These tests exercise the store against a live MongoDB instance and are
// skipped when one is not available (see test_setup.go).

func TestCreateChat_AndFindBySessionID(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	chat, err := s.CreateChat("session_1710496800000_abc123def", "203.0.113.7", "Mozilla/5.0")
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.False(t, chat.ID.IsZero())
	assert.Equal(t, constants.ChatStatusActive, chat.Status)
	assert.True(t, chat.AIEnabled)

	found, err := s.FindChatBySessionID("session_1710496800000_abc123def")
	require.NoError(t, err)
	assert.Equal(t, chat.ID, found.ID)
	assert.Equal(t, "203.0.113.7", found.UserIP)
}

func TestCreateChat_EmptySessionID(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	_, err := s.CreateChat("", "", "")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestFindChatBySessionID_NotFound(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	_, err := s.FindChatBySessionID("session_0_nosuchchat")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestFindChatByID_MalformedID(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	_, err := s.FindChatByID("not-a-hex-object-id")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestCloseChat(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	chat, err := s.CreateChat("session_1710496800001_closeme01", "", "")
	require.NoError(t, err)

	err = s.CloseChat(chat.ID.Hex())
	require.NoError(t, err)

	found, err := s.FindChatByID(chat.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, constants.ChatStatusClosed, found.Status)

	// Closing again is a no-op, not an error
	err = s.CloseChat(chat.ID.Hex())
	assert.NoError(t, err)
}

func TestSetChatAIEnabled(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	chat, err := s.CreateChat("session_1710496800002_toggleai0", "", "")
	require.NoError(t, err)

	err = s.SetChatAIEnabled(chat.ID.Hex(), false)
	require.NoError(t, err)

	found, err := s.FindChatByID(chat.ID.Hex())
	require.NoError(t, err)
	assert.False(t, found.AIEnabled)
}

func TestCreateMessage_AndListByChat(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	chat, err := s.CreateChat("session_1710496800003_messages0", "", "")
	require.NoError(t, err)

	first, err := s.CreateMessage(chat.ID, "Hello, I need help", constants.SenderUser, false)
	require.NoError(t, err)
	assert.Equal(t, "Hello, I need help", first.Content)

	_, err = s.CreateMessage(chat.ID, "Hi! How can I help you today?", constants.SenderAI, true)
	require.NoError(t, err)

	messages, err := s.ListMessagesByChat(chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	// Chronological order
	assert.Equal(t, constants.SenderUser, messages[0].Sender)
	assert.Equal(t, constants.SenderAI, messages[1].Sender)
	assert.True(t, messages[1].IsAI)
}

func TestCreateMessage_EmptyContent(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	chat, err := s.CreateChat("session_1710496800004_emptymsg0", "", "")
	require.NoError(t, err)

	_, err = s.CreateMessage(chat.ID, "", constants.SenderUser, false)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestListChats_AttachesLastMessage(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	chat, err := s.CreateChat("session_1710496800005_listchat0", "", "")
	require.NoError(t, err)

	_, err = s.CreateMessage(chat.ID, "first message", constants.SenderUser, false)
	require.NoError(t, err)
	_, err = s.CreateMessage(chat.ID, "latest message", constants.SenderAdmin, false)
	require.NoError(t, err)

	summaries, err := s.ListChats("", 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "latest message", summaries[0].LastMessage.Content)
}

func TestListChats_StatusFilter(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	active, err := s.CreateChat("session_1710496800006_active000", "", "")
	require.NoError(t, err)
	closed, err := s.CreateChat("session_1710496800007_closed000", "", "")
	require.NoError(t, err)
	require.NoError(t, s.CloseChat(closed.ID.Hex()))

	summaries, err := s.ListChats(constants.ChatStatusActive, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, active.ID, summaries[0].ID)
}

func TestListMessages_ResolvesSessionID(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	chat, err := s.CreateChat("session_1710496800008_resolved0", "", "")
	require.NoError(t, err)

	_, err = s.CreateMessage(chat.ID, "audit me", constants.SenderUser, false)
	require.NoError(t, err)

	messages, err := s.ListMessages(MessageListOptions{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "session_1710496800008_resolved0", messages[0].SessionID)
}

func TestListMessages_SenderFilter(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	chat, err := s.CreateChat("session_1710496800009_senders00", "", "")
	require.NoError(t, err)

	_, err = s.CreateMessage(chat.ID, "from visitor", constants.SenderUser, false)
	require.NoError(t, err)
	_, err = s.CreateMessage(chat.ID, "from dashboard", constants.SenderAdmin, false)
	require.NoError(t, err)

	messages, err := s.ListMessages(MessageListOptions{Sender: constants.SenderAdmin})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "from dashboard", messages[0].Content)
}

func TestListMessages_MalformedChatFilter(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	messages, err := s.ListMessages(MessageListOptions{ChatID: "garbage"})
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestEnsureIndexes(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.EnsureIndexes(ctx)
	assert.NoError(t, err)
}

func TestTouchChat_BumpsOrdering(t *testing.T) {
	s, cleanup := setupTestStoreShared(t)
	defer cleanup()

	older, err := s.CreateChat("session_1710496800010_older0000", "", "")
	require.NoError(t, err)
	_, err = s.CreateChat("session_1710496800011_newer0000", "", "")
	require.NoError(t, err)

	// Touching the older chat moves it to the top of the list
	require.NoError(t, s.TouchChat(older.ID))

	summaries, err := s.ListChats("", 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, older.ID, summaries[0].ID)
}
