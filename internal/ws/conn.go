// Package ws provides WebSocket connection handling for the chat widget and
// the admin dashboard. Visitors connect anonymously; dashboard connections
// authenticate with a JWT and are fanned into the shared admin topic.
package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	chaterrors "github.com/real-rm/supportchat/internal/errors"
	"github.com/real-rm/supportchat/internal/event"
	"github.com/real-rm/supportchat/internal/metrics"
	"github.com/real-rm/supportchat/internal/util"
)

// Connection lifecycle timeouts
var (
	// pongWait is the time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// pingPeriod is the interval for sending ping messages (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// writeWait is the time allowed to write a message to the peer
	writeWait = 10 * time.Second
)

// Connection represents an active WebSocket connection. It implements
// hub.Subscriber so the hub can fan frames into its send channel.
type Connection struct {
	// conn is the underlying WebSocket connection
	conn *websocket.Conn

	// ConnectionID is a unique identifier for this connection
	ConnectionID string

	// IsAdmin marks dashboard connections (authenticated via JWT)
	IsAdmin bool

	// AdminID is the authenticated admin's account ID (empty for visitors)
	AdminID string

	// ClientIP is the remote peer's address, used for rate limiting and
	// recorded on newly created chats
	ClientIP string

	// UserAgent is the value of the upgrade request's User-Agent header
	UserAgent string

	// sessionID is the visitor session this connection joined ("" before join)
	sessionID string

	// send is a buffered channel for outbound frames
	send chan []byte

	// closing indicates the connection is being torn down.
	// Set before closing the send channel to prevent send-on-closed-channel panics.
	closing atomic.Bool

	// mu protects concurrent access to the connection
	mu sync.RWMutex
}

// NewConnection creates a detached Connection for testing purposes
func NewConnection(connectionID string, isAdmin bool) *Connection {
	return &Connection{
		ConnectionID: connectionID,
		IsAdmin:      isAdmin,
		send:         make(chan []byte, 256),
	}
}

// ID returns the connection's unique identifier (hub.Subscriber)
func (c *Connection) ID() string {
	return c.ConnectionID
}

// GetSessionID returns the session this connection joined, if any
func (c *Connection) GetSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// SetSessionID records the session this connection joined
func (c *Connection) SetSessionID(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

// limiterKey returns the identity this connection is rate limited under:
// the admin account for dashboards, the client IP for visitors.
func (c *Connection) limiterKey() string {
	if c.IsAdmin {
		return c.AdminID
	}
	return c.ClientIP
}

// Close closes the underlying WebSocket connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SetClosing marks the connection as closing.
// After this call, SafeSend will return false.
func (c *Connection) SetClosing() {
	c.closing.Store(true)
}

// SafeSend attempts to send data to the connection's send channel.
// Returns false if the connection is closing or the channel is full.
// This is the preferred method for sending data to avoid panics on closed channels.
func (c *Connection) SafeSend(data []byte) bool {
	if c.closing.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ReceiveForTest returns the send channel as a receive channel for testing purposes
// This should only be used in tests to verify frames sent to the connection
func (c *Connection) ReceiveForTest() <-chan []byte {
	return c.send
}

// sendError sends a structured error envelope to the client.
// Uses a select/default guard to avoid blocking if the channel is full.
func (c *Connection) sendError(info *event.ErrorInfo) {
	env, err := event.NewEnvelope(event.Error, info)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return
	}
	data, err := json.Marshal(env)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump reads frames from the WebSocket connection, validates them, and
// hands them to the event router. It also owns the teardown sequence: when
// the loop exits, the connection is dropped from the hub and unregistered.
func (c *Connection) readPump(h *Handler) {
	defer func() {
		h.logger.Info("WebSocket connection closed",
			"connection_id", c.ConnectionID,
			"is_admin", c.IsAdmin,
			"session_id", c.GetSessionID(),
			"component", "ws")

		h.router.HandleDisconnect(c)
		h.unregisterConnection(c)
		c.Close()
	}()

	// Set initial read deadline
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	// Configure pong handler to reset read deadline
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		// No else needed: error handling with break (exits loop)
		if err != nil {
			// No else needed: specific error handling (logs and continues to break)
			if errors.Is(err, websocket.ErrReadLimit) {
				h.logger.Warn("WebSocket frame size limit exceeded",
					"connection_id", c.ConnectionID,
					"limit", h.maxMessageSize,
					"component", "ws")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				util.LogError(h.logger, "ws", "handle unexpected close", err,
					"connection_id", c.ConnectionID,
					"session_id", c.GetSessionID())
			} else {
				h.logger.Info("WebSocket connection closing",
					"connection_id", c.ConnectionID,
					"session_id", c.GetSessionID(),
					"component", "ws")
			}
			break
		}

		// Rate limit before any parsing work
		// No else needed: error handling with continue (skips to next iteration)
		if !h.msgLimiter.Allow(c.limiterKey()) {
			retryAfter := h.msgLimiter.GetRetryAfter(c.limiterKey())
			h.logger.Warn("Event rate limit exceeded",
				"connection_id", c.ConnectionID,
				"retry_after_ms", retryAfter,
				"component", "ws")
			c.sendError(chaterrors.ErrTooManyRequests(retryAfter).ToErrorInfo())
			continue
		}

		var env event.Envelope
		// No else needed: error handling with continue (skips to next iteration)
		if err := json.Unmarshal(rawMessage, &env); err != nil {
			h.logger.Warn("Failed to parse frame",
				"connection_id", c.ConnectionID,
				"error", err)
			metrics.MessageErrors.Inc()
			c.sendError(chaterrors.ErrInvalidMessageFormat("malformed envelope", err).ToErrorInfo())
			continue
		}

		// No else needed: error handling with continue (skips to next iteration)
		if err := env.Validate(); err != nil {
			h.logger.Warn("Frame validation failed",
				"connection_id", c.ConnectionID,
				"event", env.Event,
				"error", err)
			metrics.MessageErrors.Inc()
			c.sendError(chaterrors.ErrInvalidMessageFormat(err.Error(), err).ToErrorInfo())
			continue
		}

		metrics.MessagesReceived.Inc()

		err = h.router.HandleEvent(c, &env)
		// No else needed: error handling with continue (skips to next iteration)
		if err == nil {
			continue
		}

		util.LogError(h.logger, "ws", "handle event", err,
			"connection_id", c.ConnectionID,
			"session_id", c.GetSessionID(),
			"event", env.Event)
		metrics.MessageErrors.Inc()

		var chatErr *chaterrors.ChatError
		if errors.As(err, &chatErr) {
			c.sendError(chatErr.ToErrorInfo())
			// Fatal errors tear the connection down
			if chatErr.IsFatal() {
				break
			}
			continue
		}

		c.sendError(&event.ErrorInfo{
			Code:        string(chaterrors.ErrCodeServiceError),
			Message:     "Failed to process event",
			Recoverable: true,
		})
	}
}

// writePump writes frames to the WebSocket connection and keeps the
// heartbeat alive with periodic pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			// Set write deadline
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// No else needed: channel closed handling (sends close and returns)
			if !ok {
				// Channel closed, send close message
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// No else needed: error handling with return (exits function)
			// Write each frame as a separate WebSocket message so the
			// client can parse them as individual JSON documents
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			metrics.MessagesSent.Inc()

		case <-ticker.C:
			// No else needed: error handling with return (exits function)
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
