package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/real-rm/supportchat/internal/constants"
	"github.com/real-rm/supportchat/internal/metrics"
	"github.com/real-rm/supportchat/internal/util"
)

// Chat represents a visitor conversation
type Chat struct {
	ID        primitive.ObjectID
	SessionID string
	UserIP    string
	UserAgent string
	Status    string
	AIEnabled bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatSummary is a chat together with its most recent message, as shown in
// the dashboard chat list.
type ChatSummary struct {
	Chat
	LastMessage *Message
}

// ChatDocument represents a chat stored in MongoDB
type ChatDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	SessionID  string             `bson:"sessionId"`
	UserIP     string             `bson:"userIp,omitempty"`
	UserAgent  string             `bson:"userAgent,omitempty"`
	Status     string             `bson:"status"`
	AIEnabled  bool               `bson:"aiEnabled"`
	CreatedAt  time.Time          `bson:"_ts,omitempty"` // gomongo automatic timestamp
	ModifiedAt time.Time          `bson:"_mt,omitempty"` // gomongo automatic timestamp
}

// chatSummaryDocument is the shape produced by the chat listing pipeline
type chatSummaryDocument struct {
	ChatDocument `bson:",inline"`
	LastMessage  []MessageDocument `bson:"lastMessage"`
}

// CreateChat creates a new active chat for the given visitor session.
// New chats start with AI replies enabled.
func (s *Store) CreateChat(sessionID, userIP, userAgent string) (*Chat, error) {
	// No else needed: early return pattern (guard clause)
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	start := time.Now()
	defer func() {
		metrics.MongoOperationDuration.With(prometheus.Labels{"operation": "create_chat"}).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
	defer cancel()

	doc := &ChatDocument{
		ID:        primitive.NewObjectID(),
		SessionID: sessionID,
		UserIP:    userIP,
		UserAgent: userAgent,
		Status:    constants.ChatStatusActive,
		AIEnabled: true,
	}

	// Insert document with retry logic for transient errors
	err := s.retryOperation(ctx, "CreateChat", func() error {
		_, err := s.chats.InsertOne(ctx, doc)
		return err
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	metrics.ChatsCreated.Inc()
	metrics.ActiveChats.Inc()

	now := time.Now()
	return &Chat{
		ID:        doc.ID,
		SessionID: sessionID,
		UserIP:    userIP,
		UserAgent: userAgent,
		Status:    constants.ChatStatusActive,
		AIEnabled: true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// FindChatBySessionID retrieves the chat owned by a visitor session.
// Returns ErrChatNotFound when the session has no chat yet.
func (s *Store) FindChatBySessionID(sessionID string) (*Chat, error) {
	// No else needed: early return pattern (guard clause)
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	ctx, cancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
	defer cancel()

	filter := bson.M{constants.MongoFieldSessionID: sessionID}
	var doc ChatDocument

	err := s.retryOperation(ctx, "FindChatBySessionID", func() error {
		result := s.chats.FindOne(ctx, filter)
		return result.Decode(&doc)
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to find chat by session: %w", err)
	}

	return chatFromDocument(&doc), nil
}

// FindChatByID retrieves a chat by its hex object ID.
// A malformed ID is treated the same as a missing chat.
func (s *Store) FindChatByID(chatID string) (*Chat, error) {
	oid, err := primitive.ObjectIDFromHex(chatID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, ErrChatNotFound
	}

	ctx, cancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
	defer cancel()

	filter := bson.M{constants.MongoFieldID: oid}
	var doc ChatDocument

	err = s.retryOperation(ctx, "FindChatByID", func() error {
		result := s.chats.FindOne(ctx, filter)
		return result.Decode(&doc)
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to find chat: %w", err)
	}

	return chatFromDocument(&doc), nil
}

// ListChats returns chats ordered by most recent activity, each with its
// latest message attached. status filters by chat status ("" = all).
// If limit <= 0, defaults to constants.DefaultChatLimit.
func (s *Store) ListChats(status string, limit int) ([]*ChatSummary, error) {
	start := time.Now()
	defer func() {
		metrics.MongoOperationDuration.With(prometheus.Labels{"operation": "list_chats"}).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := util.NewTimeoutContext(constants.LongContextTimeout)
	defer cancel()

	// Default to safe limit to prevent unbounded queries
	if limit <= 0 {
		limit = constants.DefaultChatLimit
	}

	match := bson.M{}
	// No else needed: optional operation (only add filter if specified)
	if status != "" {
		match[constants.MongoFieldStatus] = status
	}

	// Pipeline: filter, newest activity first, then join each chat's latest message
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: constants.MongoFieldModified, Value: -1}}}},
		{{Key: "$limit", Value: int64(limit)}},
		{{Key: "$lookup", Value: bson.M{
			"from": s.messageCollName,
			"let":  bson.M{"chatId": "$" + constants.MongoFieldID},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$eq": bson.A{"$" + constants.MongoFieldChatID, "$$chatId"}}}},
				bson.M{"$sort": bson.M{constants.MongoFieldTimestamp: -1}},
				bson.M{"$limit": 1},
			},
			"as": "lastMessage",
		}}},
	}

	cursor, err := s.chats.Aggregate(ctx, pipeline)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer cursor.Close(ctx)

	summaries := make([]*ChatSummary, 0)
	for cursor.Next(ctx) {
		var doc chatSummaryDocument
		// No else needed: early return pattern (guard clause)
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode chat document: %w", err)
		}

		summary := &ChatSummary{Chat: *chatFromDocument(&doc.ChatDocument)}
		// No else needed: optional operation (only attach if the chat has messages)
		if len(doc.LastMessage) > 0 {
			summary.LastMessage = s.messageFromDocument(&doc.LastMessage[0])
		}

		summaries = append(summaries, summary)
	}

	// No else needed: early return pattern (guard clause)
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return summaries, nil
}

// CloseChat marks a chat as closed. Closing is one-way; closed chats are
// never reopened.
func (s *Store) CloseChat(chatID string) error {
	oid, err := primitive.ObjectIDFromHex(chatID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return ErrChatNotFound
	}

	ctx, cancel := util.NewTimeoutContext(constants.ChatUpdateTimeout)
	defer cancel()

	filter := bson.M{constants.MongoFieldID: oid}
	update := bson.M{"$set": bson.M{constants.MongoFieldStatus: constants.ChatStatusClosed}}

	var result *mongo.UpdateResult
	err = s.retryOperation(ctx, "CloseChat", func() error {
		var opErr error
		result, opErr = s.chats.UpdateOne(ctx, filter, update)
		return opErr
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return fmt.Errorf("failed to close chat: %w", err)
	}

	// No else needed: early return pattern (guard clause)
	if result.MatchedCount == 0 {
		return ErrChatNotFound
	}

	// Idempotent close: only count the transition, not repeat calls
	if result.ModifiedCount > 0 {
		metrics.ChatsClosed.Inc()
		metrics.ActiveChats.Dec()
	}

	return nil
}

// SetChatAIEnabled flips the per-chat AI reply flag
func (s *Store) SetChatAIEnabled(chatID string, enabled bool) error {
	oid, err := primitive.ObjectIDFromHex(chatID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return ErrChatNotFound
	}

	ctx, cancel := util.NewTimeoutContext(constants.ChatUpdateTimeout)
	defer cancel()

	filter := bson.M{constants.MongoFieldID: oid}
	update := bson.M{"$set": bson.M{constants.MongoFieldAIEnabled: enabled}}

	var result *mongo.UpdateResult
	err = s.retryOperation(ctx, "SetChatAIEnabled", func() error {
		var opErr error
		result, opErr = s.chats.UpdateOne(ctx, filter, update)
		return opErr
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return fmt.Errorf("failed to update chat AI flag: %w", err)
	}

	// No else needed: early return pattern (guard clause)
	if result.MatchedCount == 0 {
		return ErrChatNotFound
	}

	return nil
}

// TouchChat bumps a chat's modified timestamp so it sorts to the top of the
// dashboard list after new activity.
func (s *Store) TouchChat(chatID primitive.ObjectID) error {
	ctx, cancel := util.NewTimeoutContext(constants.ChatUpdateTimeout)
	defer cancel()

	filter := bson.M{constants.MongoFieldID: chatID}
	update := bson.M{"$currentDate": bson.M{constants.MongoFieldModified: true}}

	var result *mongo.UpdateResult
	err := s.retryOperation(ctx, "TouchChat", func() error {
		var opErr error
		result, opErr = s.chats.UpdateOne(ctx, filter, update)
		return opErr
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}

	// No else needed: early return pattern (guard clause)
	if result.MatchedCount == 0 {
		return ErrChatNotFound
	}

	return nil
}

// chatFromDocument converts a ChatDocument to a Chat
func chatFromDocument(doc *ChatDocument) *Chat {
	return &Chat{
		ID:        doc.ID,
		SessionID: doc.SessionID,
		UserIP:    doc.UserIP,
		UserAgent: doc.UserAgent,
		Status:    doc.Status,
		AIEnabled: doc.AIEnabled,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.ModifiedAt,
	}
}
