// Package router dispatches realtime chat events: it resolves visitor
// sessions, persists messages, and fans frames out to the session room and
// the admin-all topic.
package router

import (
	"encoding/json"
	"errors"

	"github.com/real-rm/golog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/real-rm/supportchat/internal/constants"
	chaterrors "github.com/real-rm/supportchat/internal/errors"
	"github.com/real-rm/supportchat/internal/event"
	"github.com/real-rm/supportchat/internal/hub"
	"github.com/real-rm/supportchat/internal/store"
	"github.com/real-rm/supportchat/internal/util"
	"github.com/real-rm/supportchat/internal/ws"
)

// ChatStore is the persistence surface the router needs
type ChatStore interface {
	FindChatBySessionID(sessionID string) (*store.Chat, error)
	FindChatByID(chatID string) (*store.Chat, error)
	CreateMessage(chatID primitive.ObjectID, content, sender string, isAI bool) (*store.Message, error)
	ListMessagesByChat(chatID primitive.ObjectID) ([]*store.Message, error)
	TouchChat(chatID primitive.ObjectID) error
}

// SessionResolver finds or creates the chat behind a session token
type SessionResolver interface {
	Resolve(sessionID, userIP, userAgent string) (*store.Chat, bool, error)
}

// Broadcaster is the fan-out surface the router publishes through
type Broadcaster interface {
	Subscribe(topic string, sub hub.Subscriber)
	Publish(topic string, data []byte)
	PublishExcept(topic, excludeID string, data []byte)
	Drop(subscriberID string)
}

// Notifier alerts admins out-of-band about new chat sessions. Implementations
// must not block; delivery failures stay internal.
type Notifier interface {
	NotifyNewChat(chat *store.Chat)
}

// ChatRouter implements ws.EventRouter for the chat wire protocol
type ChatRouter struct {
	store    ChatStore
	resolver SessionResolver
	hub      Broadcaster
	notifier Notifier // may be nil
	logger   *golog.Logger
}

// NewChatRouter creates the event router. notifier may be nil when admin
// alerting is not configured.
func NewChatRouter(chatStore ChatStore, resolver SessionResolver, broadcaster Broadcaster, notifier Notifier, logger *golog.Logger) *ChatRouter {
	return &ChatRouter{
		store:    chatStore,
		resolver: resolver,
		hub:      broadcaster,
		notifier: notifier,
		logger:   logger.WithGroup("router"),
	}
}

// HandleEvent dispatches a validated envelope to its handler
func (r *ChatRouter) HandleEvent(conn *ws.Connection, env *event.Envelope) error {
	switch env.Event {
	case event.JoinChat:
		return r.handleJoin(conn, env.Data)
	case event.SendMessage:
		return r.handleVisitorSend(conn, env.Data)
	case event.AdminSendMessage:
		return r.handleAdminSend(conn, env.Data)
	case event.TypingStart:
		return r.handleTyping(conn, env.Data, event.TypingStart)
	case event.TypingStop:
		return r.handleTyping(conn, env.Data, event.TypingStop)
	default:
		// Envelope.Validate rejects unknown events before dispatch
		return chaterrors.ErrInvalidMessageFormat("unsupported event", nil)
	}
}

// HandleDisconnect removes the connection from every topic it joined
func (r *ChatRouter) HandleDisconnect(conn *ws.Connection) {
	r.hub.Drop(conn.ID())
}

// handleJoin resolves the visitor's session and replays the chat history.
// A fresh session (no token, or a token that no longer resolves) gets a new
// chat and a session-created frame; resuming an existing session is silent.
func (r *ChatRouter) handleJoin(conn *ws.Connection, data json.RawMessage) error {
	var payload event.JoinChatPayload
	// No else needed: optional operation (join without payload is a first visit)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return chaterrors.ErrInvalidMessageFormat("malformed join-chat payload", err)
		}
	}
	payload.Sanitize()
	// No else needed: early return pattern (guard clause)
	if err := payload.Validate(); err != nil {
		return chaterrors.ErrInvalidMessageFormat(err.Error(), err)
	}

	userAgent := payload.UserAgent
	if userAgent == "" {
		userAgent = conn.UserAgent
	}
	if userAgent == "" {
		userAgent = "unknown"
	}

	chat, created, err := r.resolver.Resolve(payload.SessionID, conn.ClientIP, userAgent)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.ErrDatabaseError(err)
	}

	// No else needed: optional operation (only new sessions announce a token)
	if created {
		r.sendToConn(conn, event.SessionCreated, &event.SessionCreatedPayload{
			SessionID: chat.SessionID,
		})

		// No else needed: optional operation (alerting is best-effort)
		if r.notifier != nil {
			chatCopy := *chat
			util.SafeGo(r.logger, "newChatAlert", func() {
				r.notifier.NotifyNewChat(&chatCopy)
			})
		}
	}

	conn.SetSessionID(chat.SessionID)
	r.hub.Subscribe(chat.SessionID, conn)

	messages, err := r.store.ListMessagesByChat(chat.ID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.ErrDatabaseError(err)
	}

	history := &event.ChatHistoryPayload{
		Messages: make([]event.MessagePayload, 0, len(messages)),
	}
	for _, msg := range messages {
		history.Messages = append(history.Messages, messagePayload(msg, ""))
	}
	r.sendToConn(conn, event.ChatHistory, history)

	r.logger.Info("Connection joined chat",
		"connection_id", conn.ID(),
		"session_id", chat.SessionID,
		"created", created,
		"history_size", len(messages))
	return nil
}

// handleVisitorSend persists a visitor message and fans it out. A connection
// that never joined a session is ignored without error.
func (r *ChatRouter) handleVisitorSend(conn *ws.Connection, data json.RawMessage) error {
	sessionID := conn.GetSessionID()
	// No else needed: early return pattern (guard clause)
	// Sending before join-chat is a silent no-op
	if sessionID == "" {
		r.logger.Debug("Dropping message from connection without a session",
			"connection_id", conn.ID())
		return nil
	}

	var payload event.SendMessagePayload
	// No else needed: early return pattern (guard clause)
	if err := json.Unmarshal(data, &payload); err != nil {
		return chaterrors.ErrInvalidMessageFormat("malformed send-message payload", err)
	}
	payload.Sanitize()
	// No else needed: early return pattern (guard clause)
	if err := payload.Validate(); err != nil {
		return chaterrors.ErrInvalidMessageFormat(err.Error(), err)
	}

	chat, err := r.store.FindChatBySessionID(sessionID)
	// No else needed: early return pattern (guard clause)
	// The joined chat no longer resolves; drop the message silently
	if errors.Is(err, store.ErrChatNotFound) {
		r.logger.Warn("Joined session no longer resolves",
			"connection_id", conn.ID(),
			"session_id", sessionID)
		return nil
	}
	if err != nil {
		return chaterrors.ErrDatabaseError(err)
	}

	msg, err := r.store.CreateMessage(chat.ID, payload.Content, constants.SenderUser, false)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.ErrDatabaseError(err)
	}

	// No else needed: optional operation (ordering authority is the stored ts)
	if err := r.store.TouchChat(chat.ID); err != nil {
		util.LogError(r.logger, "router", "bump chat updated timestamp", err,
			"chat_id", chat.ID.Hex())
	}

	r.fanOutMessage(chat, msg)
	return nil
}

// handleAdminSend persists a dashboard reply and fans it out. The persisted
// sender is "ai" when the dashboard marks the reply AI-authored. An unknown
// chat id is a silent no-op.
func (r *ChatRouter) handleAdminSend(conn *ws.Connection, data json.RawMessage) error {
	// No else needed: early return pattern (guard clause)
	if !conn.IsAdmin {
		return chaterrors.NewAuthError(chaterrors.ErrCodeInvalidToken,
			"Admin authentication required", nil)
	}

	var payload event.AdminSendMessagePayload
	// No else needed: early return pattern (guard clause)
	if err := json.Unmarshal(data, &payload); err != nil {
		return chaterrors.ErrInvalidMessageFormat("malformed admin-send-message payload", err)
	}
	payload.Sanitize()
	// No else needed: early return pattern (guard clause)
	if err := payload.Validate(); err != nil {
		return chaterrors.ErrInvalidMessageFormat(err.Error(), err)
	}

	chat, err := r.store.FindChatByID(payload.ChatID)
	// No else needed: early return pattern (guard clause)
	// Unknown chat ids are dropped without error
	if errors.Is(err, store.ErrChatNotFound) {
		r.logger.Warn("Admin reply targeted unknown chat",
			"connection_id", conn.ID(),
			"chat_id", payload.ChatID)
		return nil
	}
	if err != nil {
		return chaterrors.ErrDatabaseError(err)
	}

	sender := constants.SenderAdmin
	if payload.IsAI {
		sender = constants.SenderAI
	}

	msg, err := r.store.CreateMessage(chat.ID, payload.Content, sender, payload.IsAI)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.ErrDatabaseError(err)
	}

	// No else needed: optional operation (ordering authority is the stored ts)
	if err := r.store.TouchChat(chat.ID); err != nil {
		util.LogError(r.logger, "router", "bump chat updated timestamp", err,
			"chat_id", chat.ID.Hex())
	}

	r.fanOutMessage(chat, msg)
	return nil
}

// handleTyping relays a typing indicator into the session room, excluding
// the connection that produced it. Visitors use their joined session; the
// dashboard names the target session in the payload.
func (r *ChatRouter) handleTyping(conn *ws.Connection, data json.RawMessage, name event.Name) error {
	var payload event.TypingPayload
	// No else needed: early return pattern (guard clause)
	if err := json.Unmarshal(data, &payload); err != nil {
		return chaterrors.ErrInvalidMessageFormat("malformed typing payload", err)
	}
	// No else needed: early return pattern (guard clause)
	if err := payload.Validate(); err != nil {
		return chaterrors.ErrInvalidMessageFormat(err.Error(), err)
	}

	room := conn.GetSessionID()
	if room == "" {
		room = payload.SessionID
	}
	// No else needed: early return pattern (guard clause)
	// No resolvable room: nothing to relay
	if room == "" {
		return nil
	}

	frame, err := marshalEnvelope(name, &event.TypingPayload{Sender: payload.Sender})
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return err
	}
	r.hub.PublishExcept(room, conn.ID(), frame)
	return nil
}

// BroadcastMessage fans a persisted message out to the chat's session room
// and the admin topic. Used by HTTP send paths that bypass the event loop.
func (r *ChatRouter) BroadcastMessage(chat *store.Chat, msg *store.Message) {
	r.fanOutMessage(chat, msg)
}

// fanOutMessage delivers a persisted message to the session room and mirrors
// it on the admin-all topic together with the chat-list-changed signal.
func (r *ChatRouter) fanOutMessage(chat *store.Chat, msg *store.Message) {
	payload := messagePayload(msg, chat.ID.Hex())

	// No else needed: optional operation (fan-out is best-effort)
	if frame, err := marshalEnvelope(event.NewMessage, &payload); err == nil {
		r.hub.Publish(chat.SessionID, frame)
	}
	// No else needed: optional operation (fan-out is best-effort)
	if frame, err := marshalEnvelope(event.AdminNewMessage, &payload); err == nil {
		r.hub.Publish(hub.TopicAdmins, frame)
	}
	// No else needed: optional operation (fan-out is best-effort)
	if frame, err := marshalEnvelope(event.ChatUpdated, &event.ChatUpdatedPayload{
		SessionID: chat.SessionID,
	}); err == nil {
		r.hub.Publish(hub.TopicAdmins, frame)
	}
}

// sendToConn delivers a frame to a single connection
func (r *ChatRouter) sendToConn(conn *ws.Connection, name event.Name, payload interface{}) {
	frame, err := marshalEnvelope(name, payload)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "marshal outbound frame", err,
			"event", name)
		return
	}
	// No else needed: optional operation (count and log the drop)
	if !conn.SafeSend(frame) {
		r.logger.Warn("Dropped frame for slow connection",
			"connection_id", conn.ID(),
			"event", name)
	}
}

func marshalEnvelope(name event.Name, payload interface{}) ([]byte, error) {
	env, err := event.NewEnvelope(name, payload)
	if err != nil {
		return nil, chaterrors.NewServiceError(chaterrors.ErrCodeServiceError,
			"Failed to encode outbound frame", err)
	}
	return json.Marshal(env)
}

func messagePayload(msg *store.Message, chatID string) event.MessagePayload {
	return event.MessagePayload{
		ID:        msg.ID.Hex(),
		Content:   msg.Content,
		Sender:    msg.Sender,
		IsAI:      msg.IsAI,
		CreatedAt: msg.CreatedAt,
		ChatID:    chatID,
	}
}
