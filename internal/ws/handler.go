package ws

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/real-rm/golog"

	"github.com/real-rm/supportchat/internal/auth"
	chaterrors "github.com/real-rm/supportchat/internal/errors"
	"github.com/real-rm/supportchat/internal/event"
	"github.com/real-rm/supportchat/internal/hub"
	"github.com/real-rm/supportchat/internal/metrics"
	"github.com/real-rm/supportchat/internal/ratelimit"
	"github.com/real-rm/supportchat/internal/util"
)

// upgrader holds the base WebSocket upgrade configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// EventRouter dispatches validated envelopes to the chat logic
type EventRouter interface {
	HandleEvent(conn *Connection, env *event.Envelope) error
	HandleDisconnect(conn *Connection)
}

// Handler manages WebSocket upgrades and the set of live connections.
// Visitors connect anonymously; dashboard connections present a JWT and
// are subscribed to the shared admin topic on registration.
type Handler struct {
	validator      *auth.JWTValidator
	hub            *hub.Hub
	router         EventRouter
	logger         *golog.Logger
	connLimiter    *ratelimit.ConnectionLimiter
	msgLimiter     *ratelimit.MessageLimiter
	allowedOrigins map[string]bool
	maxMessageSize int64

	// connections tracks active connections by connection ID
	connections map[string]*Connection
	mu          sync.RWMutex
}

// NewHandler creates a new WebSocket handler. eventLimit is the number of
// inbound frames allowed per client per minute.
func NewHandler(validator *auth.JWTValidator, h *hub.Hub, router EventRouter, logger *golog.Logger, maxMessageSize int64, eventLimit int) *Handler {
	wsLogger := logger.WithGroup("ws")
	handler := &Handler{
		validator:      validator,
		hub:            h,
		router:         router,
		logger:         wsLogger,
		connLimiter:    ratelimit.NewConnectionLimiter(10), // Max 10 connections per client
		msgLimiter:     ratelimit.NewMessageLimiter(time.Minute, eventLimit),
		allowedOrigins: make(map[string]bool),
		maxMessageSize: maxMessageSize,
		connections:    make(map[string]*Connection),
	}
	handler.msgLimiter.StartCleanup()
	return handler
}

// SetAllowedOrigins configures the allowed origins for WebSocket connections
// If no origins are set, all origins are allowed (development mode)
func (h *Handler) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.allowedOrigins = make(map[string]bool)
	for _, origin := range origins {
		h.allowedOrigins[origin] = true
	}

	h.logger.Info("Configured allowed origins",
		"count", len(origins),
		"origins", origins)
}

// IsOpenOrigin returns true when no allowed origins are configured,
// meaning all origins are accepted. Callers can use this to log security
// warnings or enforce stricter policies at the application level.
// SECURITY: When true, any website can establish WebSocket connections.
// This is acceptable only when the service sits behind a reverse proxy
// that performs its own origin validation.
func (h *Handler) IsOpenOrigin() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allowedOrigins) == 0
}

// checkOrigin validates the origin of a WebSocket upgrade request
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	h.mu.RLock()
	defer h.mu.RUnlock()

	// If no origins configured, allow all (development mode)
	if len(h.allowedOrigins) == 0 {
		h.logger.Debug("No origin restrictions configured, allowing all origins")
		return true
	}

	// Check if origin is in allowed list
	if h.allowedOrigins[origin] {
		return true
	}

	h.logger.Warn("Origin not allowed",
		"origin", origin,
		"allowed_origins", h.allowedOrigins)
	return false
}

// clientIP extracts the requesting client's IP, honoring X-Forwarded-For
// set by the reverse proxy. Falls back to the socket's remote address.
func clientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		// First entry is the originating client
		parts := strings.Split(forwarded, ",")
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HandleWebSocket handles HTTP to WebSocket upgrade requests
// It performs the following steps:
// 1. Extract the optional JWT (visitors connect without one)
// 2. Validate the JWT when present and mark the connection as admin
// 3. Check the per-client connection limit
// 4. Upgrade the HTTP connection to WebSocket and start the pumps
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Extract token: prefer Authorization header, fall back to query parameter.
	// Visitors connect without a token; only dashboards authenticate.
	var token string
	if extracted, err := util.ExtractBearerToken(r.Header.Get("Authorization")); err == nil {
		token = extracted
	}
	if token == "" {
		token = r.URL.Query().Get("token")
		if token != "" {
			h.logger.Warn("JWT provided via query parameter (deprecated, use Authorization header)",
				"component", "ws")
		}
	}

	var isAdmin bool
	var adminID string
	// No else needed: visitors proceed without credentials
	if token != "" {
		claims, err := h.validator.ValidateToken(token)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			h.logger.Warn("JWT validation failed",
				"error", err,
				"component", "ws")
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}
		isAdmin = true
		adminID = claims.AdminID
	}

	ip := clientIP(r)

	limiterKey := ip
	if isAdmin {
		limiterKey = adminID
	}

	// Check connection rate limit
	// No else needed: early return pattern (guard clause)
	if !h.connLimiter.Allow(limiterKey) {
		h.logger.Warn("Connection limit exceeded",
			"client", limiterKey,
			"is_admin", isAdmin,
			"component", "ws")

		chatErr := chaterrors.ErrConnectionLimitExceeded(5000)
		http.Error(w, chatErr.Message, http.StatusTooManyRequests)
		return
	}

	// Upgrade HTTP connection to WebSocket
	localUpgrader := upgrader
	localUpgrader.CheckOrigin = h.checkOrigin

	conn, err := localUpgrader.Upgrade(w, r, nil)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		h.connLimiter.Release(limiterKey)
		util.LogError(h.logger, "ws", "upgrade connection", err)
		return
	}

	// Set read limit to prevent memory exhaustion from oversized frames
	conn.SetReadLimit(h.maxMessageSize)

	connection := &Connection{
		conn:         conn,
		ConnectionID: uuid.NewString(),
		IsAdmin:      isAdmin,
		AdminID:      adminID,
		ClientIP:     ip,
		UserAgent:    r.Header.Get("User-Agent"),
		send:         make(chan []byte, 256),
	}

	h.registerConnection(connection)

	h.logger.Info("WebSocket connection established",
		"connection_id", connection.ConnectionID,
		"is_admin", isAdmin,
		"client_ip", ip,
		"component", "ws")

	// Start read and write pumps in goroutines with panic recovery
	util.SafeGo(h.logger, "readPump", func() { connection.readPump(h) })
	util.SafeGo(h.logger, "writePump", func() { connection.writePump() })
}

// registerConnection adds a connection to the active connections map.
// Dashboard connections join the shared admin topic so they see every chat.
func (h *Handler) registerConnection(conn *Connection) {
	h.mu.Lock()
	h.connections[conn.ConnectionID] = conn
	total := len(h.connections)
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()

	// No else needed: optional operation (admin fan-in)
	if conn.IsAdmin {
		metrics.AdminConnections.Inc()
		h.hub.Subscribe(hub.TopicAdmins, conn)
	}

	h.logger.Info("Connection registered",
		"connection_id", conn.ConnectionID,
		"is_admin", conn.IsAdmin,
		"total_connections", total)
}

// RegisterConnectionForTest registers a connection for testing purposes
// This should only be used in tests
func (h *Handler) RegisterConnectionForTest(conn *Connection) {
	h.registerConnection(conn)
}

// unregisterConnection removes a connection from the active connections map
func (h *Handler) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	_, exists := h.connections[conn.ConnectionID]
	// No else needed: early return pattern (guard clause)
	if !exists {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn.ConnectionID)
	remaining := len(h.connections)
	h.mu.Unlock()

	conn.closing.Store(true)
	close(conn.send)

	h.hub.Drop(conn.ConnectionID)
	h.connLimiter.Release(conn.limiterKey())

	metrics.WebSocketConnections.Dec()
	// No else needed: optional operation (admin gauge)
	if conn.IsAdmin {
		metrics.AdminConnections.Dec()
	}

	h.logger.Info("Connection unregistered",
		"connection_id", conn.ConnectionID,
		"is_admin", conn.IsAdmin,
		"remaining_connections", remaining)
}

// ConnectionCount returns the number of active connections
func (h *Handler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// ShutdownWithContext gracefully closes all active WebSocket connections
// It respects the context deadline and will force shutdown if the deadline is exceeded
func (h *Handler) ShutdownWithContext(ctx context.Context) error {
	h.logger.Info("Shutting down WebSocket handler, closing all connections")

	h.msgLimiter.StopCleanup()

	// Get all connections
	h.mu.Lock()
	connections := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		connections = append(connections, conn)
	}
	h.mu.Unlock()

	// Close connections in parallel with context deadline
	var wg sync.WaitGroup

	for _, conn := range connections {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()

			h.logger.Info("Closing WebSocket connection",
				"connection_id", c.ConnectionID)

			// Send close message
			c.mu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"))
			}
			c.mu.Unlock()

			c.Close()
		}(conn)
	}

	// Wait for all closures or context deadline
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("All WebSocket connections closed gracefully")
		return nil
	case <-ctx.Done():
		h.logger.Warn("Shutdown deadline exceeded, forcing closure",
			"remaining_connections", len(connections))
		return ctx.Err()
	}
}
