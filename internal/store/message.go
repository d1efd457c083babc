package store

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/real-rm/gomongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/real-rm/supportchat/internal/constants"
	"github.com/real-rm/supportchat/internal/metrics"
	"github.com/real-rm/supportchat/internal/util"
)

// Message represents a single chat message
type Message struct {
	ID        primitive.ObjectID
	ChatID    primitive.ObjectID
	Content   string
	Sender    string // "user", "admin", "ai"
	IsAI      bool
	CreatedAt time.Time
	// SessionID is populated by ListMessages only; it resolves the owning
	// chat's visitor session, or "N/A" when the chat no longer exists.
	SessionID string
}

// MessageDocument represents a message stored in MongoDB
type MessageDocument struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	ChatID  primitive.ObjectID `bson:"chatId"`
	Content string             `bson:"content"`
	Sender  string             `bson:"sender"`
	IsAI    bool               `bson:"isAI"`
	Ts      time.Time          `bson:"ts"`
}

// messageWithSessionDocument is the shape produced by the cross-chat
// listing pipeline, which joins the owning chat for its session ID.
type messageWithSessionDocument struct {
	MessageDocument `bson:",inline"`
	SessionID       string `bson:"sessionId"`
}

// MessageListOptions defines filtering for the cross-chat message listing
type MessageListOptions struct {
	ChatID string // Filter by chat hex ID ("" = all chats)
	Sender string // Filter by sender type ("" = all senders)
	Limit  int    // Maximum results (default and cap: constants.MaxMessageQueryLimit)
}

// CreateMessage persists a message in a chat. Content is encrypted at rest
// when the store was built with an encryption key.
func (s *Store) CreateMessage(chatID primitive.ObjectID, content, sender string, isAI bool) (*Message, error) {
	// No else needed: early return pattern (guard clause)
	if content == "" {
		return nil, ErrEmptyContent
	}

	start := time.Now()
	defer func() {
		metrics.MongoOperationDuration.With(prometheus.Labels{"operation": "create_message"}).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := util.NewTimeoutContext(constants.MessageWriteTimeout)
	defer cancel()

	doc := &MessageDocument{
		ID:      primitive.NewObjectID(),
		ChatID:  chatID,
		Content: content,
		Sender:  sender,
		IsAI:    isAI,
		Ts:      time.Now(),
	}

	// Encrypt content if encryption key is provided
	// No else needed: optional operation (only encrypt if key is available)
	if len(s.encryptionKey) > 0 {
		encrypted, err := s.encrypt(doc.Content)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt message content: %w", err)
		}
		doc.Content = encrypted
	}

	err := s.retryOperation(ctx, "CreateMessage", func() error {
		_, opErr := s.messages.InsertOne(ctx, doc)
		return opErr
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	metrics.MessagesStored.With(prometheus.Labels{"sender": sender}).Inc()

	return &Message{
		ID:        doc.ID,
		ChatID:    chatID,
		Content:   content, // Return plaintext, not the stored ciphertext
		Sender:    sender,
		IsAI:      isAI,
		CreatedAt: doc.Ts,
	}, nil
}

// ListMessagesByChat returns a chat's full transcript in chronological order
func (s *Store) ListMessagesByChat(chatID primitive.ObjectID) ([]*Message, error) {
	start := time.Now()
	defer func() {
		metrics.MongoOperationDuration.With(prometheus.Labels{"operation": "list_messages_by_chat"}).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
	defer cancel()

	filter := bson.M{constants.MongoFieldChatID: chatID}
	queryOpts := gomongo.QueryOptions{
		Sort: bson.D{{Key: constants.MongoFieldTimestamp, Value: 1}},
	}

	cursor, err := s.messages.Find(ctx, filter, queryOpts)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*Message, 0)
	for cursor.Next(ctx) {
		var doc MessageDocument
		// No else needed: early return pattern (guard clause)
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message document: %w", err)
		}
		messages = append(messages, s.messageFromDocument(&doc))
	}

	// No else needed: early return pattern (guard clause)
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return messages, nil
}

// ListMessages returns messages across all chats, newest first, with the
// owning chat's session ID resolved for each. Designed for the dashboard's
// message audit view.
func (s *Store) ListMessages(opts MessageListOptions) ([]*Message, error) {
	start := time.Now()
	defer func() {
		metrics.MongoOperationDuration.With(prometheus.Labels{"operation": "list_messages"}).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := util.NewTimeoutContext(constants.LongContextTimeout)
	defer cancel()

	limit := opts.Limit
	if limit <= 0 || limit > constants.MaxMessageQueryLimit {
		limit = constants.MaxMessageQueryLimit // Cap for performance
	}

	match := bson.M{}
	// No else needed: optional operation (only add filter if specified)
	if opts.ChatID != "" {
		oid, err := primitive.ObjectIDFromHex(opts.ChatID)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			// A malformed chat filter can never match anything
			return []*Message{}, nil
		}
		match[constants.MongoFieldChatID] = oid
	}

	// No else needed: optional operation (only add filter if specified)
	if opts.Sender != "" {
		match[constants.MongoFieldSender] = opts.Sender
	}

	// Pipeline: filter, newest first, cap, then resolve each message's
	// session via the owning chat ("N/A" when the chat is gone)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: constants.MongoFieldTimestamp, Value: -1}}}},
		{{Key: "$limit", Value: int64(limit)}},
		{{Key: "$lookup", Value: bson.M{
			"from":         s.chatCollName,
			"localField":   constants.MongoFieldChatID,
			"foreignField": constants.MongoFieldID,
			"as":           "chat",
		}}},
		{{Key: "$addFields", Value: bson.M{
			constants.MongoFieldSessionID: bson.M{"$ifNull": bson.A{
				bson.M{"$arrayElemAt": bson.A{"$chat." + constants.MongoFieldSessionID, 0}},
				constants.UnknownSessionPlaceholder,
			}},
		}}},
		{{Key: "$project", Value: bson.M{"chat": 0}}},
	}

	cursor, err := s.messages.Aggregate(ctx, pipeline)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*Message, 0)
	for cursor.Next(ctx) {
		var doc messageWithSessionDocument
		// No else needed: early return pattern (guard clause)
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message document: %w", err)
		}

		msg := s.messageFromDocument(&doc.MessageDocument)
		msg.SessionID = doc.SessionID
		messages = append(messages, msg)
	}

	// No else needed: early return pattern (guard clause)
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return messages, nil
}

// messageFromDocument converts a MessageDocument to a Message, decrypting
// stored content when encryption is enabled.
func (s *Store) messageFromDocument(doc *MessageDocument) *Message {
	return &Message{
		ID:        doc.ID,
		ChatID:    doc.ChatID,
		Content:   s.decryptOrOriginal(doc.Content),
		Sender:    doc.Sender,
		IsAI:      doc.IsAI,
		CreatedAt: doc.Ts,
	}
}
