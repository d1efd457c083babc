// Package store persists chats and messages in MongoDB using gomongo.
package store

import (
	"context"
	"crypto/aes"
	cipherPkg "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/real-rm/golog"
	"github.com/real-rm/gomongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/real-rm/supportchat/internal/constants"
)

var (
	// ErrInvalidSessionID is returned when a session ID is empty
	ErrInvalidSessionID = errors.New("session ID cannot be empty")
	// ErrChatNotFound is returned when no chat matches the given identifier
	ErrChatNotFound = errors.New("chat not found")
	// ErrEmptyContent is returned when a message has no content
	ErrEmptyContent = errors.New("message content cannot be empty")
)

// retryConfig holds configuration for MongoDB retry logic
type retryConfig struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

// defaultRetryConfig provides default retry configuration
var defaultRetryConfig = retryConfig{
	maxAttempts:  constants.MaxRetryAttempts,
	initialDelay: constants.InitialRetryDelay,
	maxDelay:     constants.MaxRetryDelay,
	multiplier:   constants.RetryMultiplier,
}

// Store manages chat and message persistence in MongoDB using gomongo
type Store struct {
	mongo           *gomongo.Mongo
	chats           *gomongo.MongoCollection
	messages        *gomongo.MongoCollection
	chatCollName    string // referenced by $lookup stages
	messageCollName string
	logger          *golog.Logger
	encryptionKey []byte         // Key for encrypting message content at rest
	gcm           cipherPkg.AEAD // Pre-computed AES-GCM cipher (nil if encryption disabled)
}

// NewStore creates a new store using gomongo
// mongo: gomongo.Mongo instance (from gomongo.InitMongoDB)
// dbName: database name
// chatColl, messageColl: collection names
// logger: golog.Logger instance for logging
// encryptionKey: should be 32 bytes for AES-256 encryption, nil disables encryption
func NewStore(mongo *gomongo.Mongo, dbName, chatColl, messageColl string, logger *golog.Logger, encryptionKey []byte) *Store {
	s := &Store{
		mongo:           mongo,
		chats:           mongo.Coll(dbName, chatColl),
		messages:        mongo.Coll(dbName, messageColl),
		chatCollName:    chatColl,
		messageCollName: messageColl,
		logger:          logger,
		encryptionKey:   encryptionKey,
	}

	// Pre-compute AES-GCM cipher to avoid per-call key schedule overhead
	if len(encryptionKey) > 0 {
		block, err := aes.NewCipher(encryptionKey)
		if err != nil {
			logger.Error("AES-GCM cipher initialization failed, encryption disabled", "error", err)
		} else {
			gcm, err := cipherPkg.NewGCM(block)
			if err != nil {
				logger.Error("AES-GCM initialization failed, encryption disabled", "error", err)
			} else {
				s.gcm = gcm
			}
		}
	}

	return s
}

// EnsureIndexes creates the indexes needed by the chat and message collections.
// This should be called during application initialization.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	chatIndexes := []mongo.IndexModel{
		{
			// Unique: each visitor session owns at most one chat document
			Keys:    bson.D{{Key: constants.MongoFieldSessionID, Value: 1}},
			Options: options.Index().SetName(constants.IndexSessionID).SetUnique(true),
		},
		{
			// Dashboard lists chats by most recent activity
			Keys:    bson.D{{Key: constants.MongoFieldModified, Value: -1}},
			Options: options.Index().SetName(constants.IndexChatModified),
		},
	}

	messageIndexes := []mongo.IndexModel{
		{
			// Transcript queries fetch a chat's messages in time order
			Keys: bson.D{
				{Key: constants.MongoFieldChatID, Value: 1},
				{Key: constants.MongoFieldTimestamp, Value: 1},
			},
			Options: options.Index().SetName(constants.IndexChatTimestamp),
		},
		{
			// Cross-chat listing filters by sender
			Keys:    bson.D{{Key: constants.MongoFieldSender, Value: 1}},
			Options: options.Index().SetName(constants.IndexSenderFilter),
		},
	}

	_, err := s.chats.CreateIndexes(ctx, chatIndexes)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return fmt.Errorf("failed to create chat indexes: %w", err)
	}

	_, err = s.messages.CreateIndexes(ctx, messageIndexes)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	s.logger.Info("MongoDB indexes created successfully",
		"indexes", []string{constants.IndexSessionID, constants.IndexChatModified, constants.IndexChatTimestamp, constants.IndexSenderFilter},
	)

	return nil
}

// isRetryableError checks if an error is retryable (transient)
// Returns true for network errors and transient MongoDB errors
func isRetryableError(err error) bool {
	// No else needed: early return pattern (guard clause)
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Network errors
	if containsAny(errStr, []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"i/o timeout",
		"EOF",
	}) {
		return true
	}

	// MongoDB specific transient errors
	if containsAny(errStr, []string{
		"server selection timeout",
		"no reachable servers",
		"connection pool",
		"socket",
	}) {
		return true
	}

	return false
}

// containsAny checks if a string contains any of the given substrings
func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// retryOperation executes an operation with retry logic for transient errors
// Uses exponential backoff with configurable parameters
func (s *Store) retryOperation(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	delay := defaultRetryConfig.initialDelay

	for attempt := 1; attempt <= defaultRetryConfig.maxAttempts; attempt++ {
		err := fn()
		// No else needed: early return pattern (guard clause - success case)
		if err == nil {
			return nil
		}

		// Check if error is retryable
		// No else needed: early return pattern (guard clause - non-retryable error)
		if !isRetryableError(err) {
			return err
		}

		lastErr = err

		// No else needed: optional operation (only retry if attempts remain)
		if attempt < defaultRetryConfig.maxAttempts {
			s.logger.Warn("MongoDB operation failed, retrying",
				"operation", operation,
				"attempt", attempt,
				"max_attempts", defaultRetryConfig.maxAttempts,
				"delay", delay,
				"error", err)

			// Sleep with context awareness
			select {
			case <-time.After(delay):
				// Continue to next attempt
			case <-ctx.Done():
				return fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
			}

			// Exponential backoff
			delay = time.Duration(float64(delay) * defaultRetryConfig.multiplier)
			// No else needed: optional operation (only cap if exceeds max)
			if delay > defaultRetryConfig.maxDelay {
				delay = defaultRetryConfig.maxDelay
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w",
		defaultRetryConfig.maxAttempts, lastErr)
}

// getGCM returns the pre-computed GCM cipher, or creates one on-the-fly from encryptionKey.
// Returns nil if encryption is disabled (no key).
func (s *Store) getGCM() (cipherPkg.AEAD, error) {
	if s.gcm != nil {
		return s.gcm, nil
	}
	if len(s.encryptionKey) == 0 {
		return nil, nil
	}
	// Fallback: compute cipher from encryptionKey (used by tests that construct Store directly)
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key size: %w", err)
	}
	gcm, err := cipherPkg.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// encrypt encrypts data using AES-256-GCM
func (s *Store) encrypt(plaintext string) (string, error) {
	gcm, err := s.getGCM()
	if err != nil {
		return "", err
	}
	if gcm == nil {
		return plaintext, nil
	}

	// Create nonce
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Encrypt and prepend nonce
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	// Encode to base64 for storage
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts data using AES-256-GCM
func (s *Store) decrypt(ciphertext string) (string, error) {
	gcm, err := s.getGCM()
	if err != nil {
		return "", err
	}
	if gcm == nil {
		return ciphertext, nil
	}

	// Decode from base64
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	// Extract nonce and ciphertext
	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]

	// Decrypt
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// decryptOrOriginal decrypts stored content, falling back to the stored value
// when decryption fails (the document may predate encryption being enabled).
func (s *Store) decryptOrOriginal(content string) string {
	// No else needed: early return pattern (guard clause)
	if len(s.encryptionKey) == 0 {
		return content
	}

	decrypted, err := s.decrypt(content)
	// No else needed: optional operation (fallback to original on error)
	if err == nil {
		return decrypted
	}
	return content
}
