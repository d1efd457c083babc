// Package session resolves visitor session tokens to their chats, creating
// a new chat (and token) for first-time visitors.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/real-rm/golog"

	"github.com/real-rm/supportchat/internal/constants"
	"github.com/real-rm/supportchat/internal/store"
)

// base36Alphabet is the character set for the random token suffix
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// ChatStore is the subset of the store the resolver needs
type ChatStore interface {
	FindChatBySessionID(sessionID string) (*store.Chat, error)
	CreateChat(sessionID, userIP, userAgent string) (*store.Chat, error)
}

// Resolver maps visitor session tokens to chats
type Resolver struct {
	chats  ChatStore
	logger *golog.Logger
}

// NewResolver creates a resolver over the given chat store
func NewResolver(chats ChatStore, logger *golog.Logger) *Resolver {
	return &Resolver{
		chats:  chats,
		logger: logger,
	}
}

// Resolve returns the chat for a visitor. When sessionID names an existing
// chat it is reused; otherwise a fresh token is minted and a new chat
// created. The second return value reports whether a new chat was created,
// which is what decides whether the client is told its new token.
func (r *Resolver) Resolve(sessionID, userIP, userAgent string) (*store.Chat, bool, error) {
	// No else needed: optional operation (only look up if a token was presented)
	if sessionID != "" {
		chat, err := r.chats.FindChatBySessionID(sessionID)
		// No else needed: early return pattern (guard clause - existing chat)
		if err == nil {
			return chat, false, nil
		}
		// Unknown tokens fall through to a fresh chat; anything else is fatal
		if !errors.Is(err, store.ErrChatNotFound) {
			return nil, false, fmt.Errorf("failed to resolve session: %w", err)
		}
	}

	newID, err := GenerateSessionID()
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate session token: %w", err)
	}

	chat, err := r.chats.CreateChat(newID, userIP, userAgent)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create chat: %w", err)
	}

	r.logger.Info("New chat created",
		"session_id", newID,
		"chat_id", chat.ID.Hex(),
	)

	return chat, true, nil
}

// GenerateSessionID mints a visitor session token of the form
// session_<unix-millis>_<random base36 suffix>. The suffix comes from
// crypto/rand with rejection sampling to keep the distribution uniform.
func GenerateSessionID() (string, error) {
	suffix := make([]byte, constants.SessionTokenRandLen)
	// Largest multiple of 36 that fits in a byte; values at or above it
	// would bias the modulo and are redrawn
	const max = 252

	buf := make([]byte, 1)
	for i := 0; i < len(suffix); {
		// No else needed: early return pattern (guard clause)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		if buf[0] >= max {
			continue
		}
		suffix[i] = base36Alphabet[int(buf[0])%len(base36Alphabet)]
		i++
	}

	return "session_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + string(suffix), nil
}
