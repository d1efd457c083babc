package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(SessionCreated, SessionCreatedPayload{SessionID: "session_123_abc"})
	require.NoError(t, err)
	assert.Equal(t, SessionCreated, env.Event)

	var payload SessionCreatedPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "session_123_abc", payload.SessionID)
}

func TestNewEnvelope_NilPayload(t *testing.T) {
	env, err := NewEnvelope(TypingStop, nil)
	require.NoError(t, err)
	assert.Equal(t, TypingStop, env.Event)
	assert.Nil(t, env.Data)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEnvelope(SendMessage, SendMessagePayload{Content: "Hello"})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, SendMessage, decoded.Event)

	var payload SendMessagePayload
	require.NoError(t, json.Unmarshal(decoded.Data, &payload))
	assert.Equal(t, "Hello", payload.Content)
}

func TestMessagePayload_MarshalRFC3339(t *testing.T) {
	created := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	payload := MessagePayload{
		ID:        "65f1c0ffee",
		Content:   "Need help with my order",
		Sender:    "user",
		IsAI:      false,
		CreatedAt: created,
		ChatID:    "65f1deadbeef",
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "2024-03-15T10:30:00Z", fields["createdAt"])
	assert.Equal(t, "user", fields["sender"])
	assert.Equal(t, false, fields["isAI"])
	assert.Equal(t, "65f1deadbeef", fields["chatId"])
}

func TestMessagePayload_UnmarshalRFC3339(t *testing.T) {
	raw := []byte(`{"id":"abc","content":"hi","sender":"admin","isAI":true,"createdAt":"2024-03-15T10:30:00Z"}`)

	var payload MessagePayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "abc", payload.ID)
	assert.Equal(t, "admin", payload.Sender)
	assert.True(t, payload.IsAI)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), payload.CreatedAt.UTC())
}

func TestMessagePayload_UnmarshalBadTimestamp(t *testing.T) {
	raw := []byte(`{"id":"abc","content":"hi","sender":"user","createdAt":"not-a-time"}`)

	var payload MessagePayload
	err := json.Unmarshal(raw, &payload)
	assert.Error(t, err)
}

func TestMessagePayload_ChatIDOmittedWhenEmpty(t *testing.T) {
	payload := MessagePayload{
		ID:        "abc",
		Content:   "hi",
		Sender:    "user",
		CreatedAt: time.Now(),
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "chatId")
}
