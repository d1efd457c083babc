// Package supportchat provides the main service registration for the live
// chat application. It implements a Register function that wires the visitor
// widget WebSocket endpoint, the admin dashboard HTTP API, and the
// operational endpoints onto a gin router.
package supportchat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/real-rm/goconfig"
	"github.com/real-rm/golog"
	"github.com/real-rm/gomongo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/real-rm/supportchat/internal/admin"
	"github.com/real-rm/supportchat/internal/ai"
	"github.com/real-rm/supportchat/internal/auth"
	"github.com/real-rm/supportchat/internal/config"
	"github.com/real-rm/supportchat/internal/constants"
	"github.com/real-rm/supportchat/internal/event"
	"github.com/real-rm/supportchat/internal/httperrors"
	"github.com/real-rm/supportchat/internal/hub"
	"github.com/real-rm/supportchat/internal/metrics"
	"github.com/real-rm/supportchat/internal/notification"
	"github.com/real-rm/supportchat/internal/ratelimit"
	"github.com/real-rm/supportchat/internal/router"
	"github.com/real-rm/supportchat/internal/session"
	"github.com/real-rm/supportchat/internal/store"
	"github.com/real-rm/supportchat/internal/util"
	"github.com/real-rm/supportchat/internal/ws"
)

var (
	// Global references for graceful shutdown
	globalWSHandler     *ws.Handler
	globalAdminLimiter  *ratelimit.MessageLimiter
	globalPublicLimiter *ratelimit.MessageLimiter
	globalLogger        *golog.Logger
	shutdownMu          sync.Mutex
)

// chatDirectory is the slice of the store the HTTP handlers need
type chatDirectory interface {
	FindChatByID(chatID string) (*store.Chat, error)
	ListChats(status string, limit int) ([]*store.ChatSummary, error)
	ListMessagesByChat(chatID primitive.ObjectID) ([]*store.Message, error)
	ListMessages(opts store.MessageListOptions) ([]*store.Message, error)
	CloseChat(chatID string) error
	SetChatAIEnabled(chatID string, enabled bool) error
	CreateMessage(chatID primitive.ObjectID, content, sender string, isAI bool) (*store.Message, error)
	TouchChat(chatID primitive.ObjectID) error
}

// adminDirectory is the slice of the admin store the HTTP handlers need
type adminDirectory interface {
	Authenticate(username, password string) (*admin.Admin, error)
	FindByID(adminID string) (*admin.Admin, error)
}

// messageBroadcaster fans a persisted message out to realtime subscribers
type messageBroadcaster interface {
	BroadcastMessage(chat *store.Chat, msg *store.Message)
}

// Register registers the supportchat service with the host gin router.
//
// Parameters:
//   - r: Gin router for registering HTTP and WebSocket endpoints
//   - configAccessor: Configuration accessor for mail/SMS delivery settings
//   - logger: Logger for structured logging
//   - mongo: MongoDB client for data persistence
//
// Returns:
//   - error: Any error that occurred during registration
func Register(r *gin.Engine, configAccessor *goconfig.ConfigAccessor, logger *golog.Logger, mongo *gomongo.Mongo) error {
	// Create service-specific logger
	chatLogger := logger.WithGroup("supportchat")
	chatLogger.Info("Initializing supportchat service")

	// Load configuration from environment variables and validate it up
	// front so misconfigurations are caught before serving traffic
	cfg, err := config.Load()
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	// No else needed: early return pattern (guard clause)
	if err := cfg.Validate(); err != nil {
		chatLogger.Error("Configuration validation failed", "error", err)
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// No else needed: optional operation (logging based on configuration state)
	if cfg.Security.EncryptionKey != "" {
		chatLogger.Info("Message encryption enabled", "key_length", len(cfg.Security.EncryptionKey))
	} else {
		chatLogger.Warn("No encryption key configured, messages will be stored unencrypted")
	}

	// Create the chat/message store with the (possibly empty) encryption key
	chatStore := store.NewStore(mongo,
		cfg.Database.Database,
		cfg.Database.ChatCollection,
		cfg.Database.MessageCollection,
		chatLogger,
		[]byte(cfg.Security.EncryptionKey))

	adminStore := admin.NewStore(mongo, cfg.Database.Database, cfg.Database.AdminCollection, chatLogger)

	// Ensure MongoDB indexes are created for optimal query performance
	indexCtx, indexCancel := util.NewTimeoutContext(constants.MongoIndexTimeout)
	defer indexCancel()
	// No else needed: optional operation (non-critical index creation)
	if err := chatStore.EnsureIndexes(indexCtx); err != nil {
		chatLogger.Warn("Failed to create MongoDB indexes", "error", err)
		// Don't fail startup - indexes can be created manually if needed
	}
	// No else needed: optional operation (non-critical index creation)
	if err := adminStore.EnsureIndexes(indexCtx); err != nil {
		chatLogger.Warn("Failed to create admin indexes", "error", err)
	}

	// Seed the default dashboard account so a fresh deployment has a login
	seedCtx, seedCancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
	defer seedCancel()
	// No else needed: early return pattern (guard clause)
	if err := adminStore.EnsureDefaultAdmin(seedCtx, cfg.Security.DefaultAdminUsername, cfg.Security.DefaultAdminPassword); err != nil {
		return fmt.Errorf("failed to seed default admin: %w", err)
	}

	// Create notification service for new-chat alerts
	notificationService, err := notification.NewService(chatLogger, configAccessor, mongo)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return fmt.Errorf("failed to create notification service: %w", err)
	}

	// Create AI responder. Without an API key it serves canned fallbacks.
	responder := ai.NewResponder(cfg.AI.APIKey, cfg.AI.Endpoint, cfg.AI.Model, chatLogger)
	// No else needed: optional operation (logging based on configuration state)
	if !responder.ProviderConfigured() {
		chatLogger.Warn("No AI provider key configured, AI replies use canned fallbacks")
	}

	// Wire the realtime core: fan-out hub, session resolver, event router
	fanout := hub.NewHub(chatLogger)
	resolver := session.NewResolver(chatStore, chatLogger)
	chatRouter := router.NewChatRouter(chatStore, resolver, fanout, notificationService, chatLogger)

	validator := auth.NewJWTValidator(cfg.Security.JWTSecret)
	issuer := auth.NewTokenIssuer(cfg.Security.JWTSecret)

	wsHandler := ws.NewHandler(validator, fanout, chatRouter, chatLogger, constants.DefaultMaxMessageSize, cfg.Server.RateLimit)

	// Configure allowed origins for WebSocket connections.
	// SECURITY: When no origin is configured, ALL origins are accepted.
	// This is acceptable only in development. In production, always set
	// FRONTEND_URL to prevent cross-site WebSocket hijacking.
	// No else needed: optional operation (configuration with fallback logging)
	if cfg.Server.FrontendOrigin != "" {
		wsHandler.SetAllowedOrigins([]string{cfg.Server.FrontendOrigin})
	} else {
		chatLogger.Warn("No frontend origin configured, allowing all origins (development mode)")
	}

	// Create admin endpoint rate limiter (per admin account)
	adminLimiter := ratelimit.NewMessageLimiter(cfg.Server.AdminRateWindow, cfg.Server.AdminRateLimit)
	chatLogger.Info("Admin rate limiter configured",
		"rate_limit", cfg.Server.AdminRateLimit,
		"window", cfg.Server.AdminRateWindow)

	// Create public endpoint rate limiter (per-IP, prevents abuse of healthz/readyz/metrics)
	publicLimiter := ratelimit.NewMessageLimiter(1*time.Minute, constants.PublicEndpointRate)

	// Start background cleanup goroutines only after all validation is
	// complete, so we don't leak goroutines if Register() returns an error
	adminLimiter.StartCleanup()
	publicLimiter.StartCleanup()

	// Store global references for graceful shutdown.
	// Stop any previously-registered instances to prevent goroutine leaks
	// when Register() is called multiple times (tests, hot-reload).
	shutdownMu.Lock()
	if globalAdminLimiter != nil {
		globalAdminLimiter.StopCleanup()
	}
	if globalPublicLimiter != nil {
		globalPublicLimiter.StopCleanup()
	}
	if globalWSHandler != nil {
		_ = globalWSHandler.ShutdownWithContext(context.Background())
	}
	globalWSHandler = wsHandler
	globalAdminLimiter = adminLimiter
	globalPublicLimiter = publicLimiter
	globalLogger = chatLogger
	shutdownMu.Unlock()

	// Configure CORS for the widget and dashboard origin
	// No else needed: optional operation (CORS configuration with fallback logging)
	if cfg.Server.FrontendOrigin != "" {
		corsConfig := cors.Config{
			AllowOrigins:     []string{cfg.Server.FrontendOrigin},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		r.Use(cors.New(corsConfig))

		chatLogger.Info("CORS middleware configured",
			"allowed_origin", cfg.Server.FrontendOrigin,
			"allow_credentials", true)
	} else {
		chatLogger.Warn("No frontend origin configured, CORS middleware not enabled")
	}

	// Configure trusted proxies to prevent X-Forwarded-For spoofing.
	// c.ClientIP() will only trust X-Forwarded-For from these networks.
	if cfg.Server.TrustedProxies != "" {
		proxies := strings.Split(cfg.Server.TrustedProxies, ",")
		for i, p := range proxies {
			proxies[i] = strings.TrimSpace(p)
		}
		if err := r.SetTrustedProxies(proxies); err != nil {
			chatLogger.Warn("Failed to set trusted proxies", "error", err)
		} else {
			chatLogger.Info("Trusted proxies configured", "proxies", proxies)
		}
	}

	// Apply security headers middleware
	r.Use(securityHeadersMiddleware())

	// Apply metrics middleware to record HTTP request duration
	r.Use(metricsMiddleware())

	chatLogger.Info("Using HTTP path prefix", "prefix", cfg.Server.PathPrefix)

	// Register routes
	chatGroup := r.Group(cfg.Server.PathPrefix)
	{
		// WebSocket endpoint - use Gin context adapter
		chatGroup.GET("/ws", func(c *gin.Context) {
			// If the dashboard JWT arrives as a query param, move it to the
			// Authorization header and redact it from the URL so it never
			// appears in access logs.
			if token := c.Query("token"); token != "" {
				if c.Request.Header.Get("Authorization") == "" {
					c.Request.Header.Set("Authorization", "Bearer "+token)
				}
				q := c.Request.URL.Query()
				q.Del("token")
				c.Request.URL.RawQuery = q.Encode()
			}
			wsHandler.HandleWebSocket(c.Writer, c.Request)
		})

		// Dashboard login is the only unauthenticated admin endpoint
		chatGroup.POST("/admin/login", handleAdminLogin(adminStore, issuer, chatLogger))

		// Authenticated dashboard endpoints
		authorized := chatGroup.Group("")
		authorized.Use(authMiddleware(validator, chatLogger))
		authorized.Use(adminRateLimitMiddleware(adminLimiter, chatLogger))
		{
			authorized.GET("/admin/me", handleAdminMe(adminStore, chatLogger))
			authorized.GET("/chats", handleListChats(chatStore, chatLogger))
			authorized.GET("/chats/messages/all", handleListAllMessages(chatStore, chatLogger))
			authorized.GET("/chats/:id", handleGetChat(chatStore, chatLogger))
			authorized.PUT("/chats/:id/close", handleCloseChat(chatStore, fanout, chatLogger))
			authorized.PUT("/chats/:id/toggle-ai", handleToggleAI(chatStore, chatLogger))
			authorized.POST("/chats/:id/ai-reply", handleAIReply(chatStore, responder, chatRouter, chatLogger))
		}

		// Health check endpoints (rate limited to prevent abuse)
		chatGroup.GET("/healthz", publicRateLimitMiddleware(publicLimiter, chatLogger), handleHealthCheck)
		chatGroup.GET("/readyz", publicRateLimitMiddleware(publicLimiter, chatLogger), handleReadyCheck(mongo, cfg, responder, chatLogger))

		// Prometheus metrics endpoint — restricted to configured networks
		metricsNets := parseNetworks(cfg.Server.MetricsAllowedNetworks, chatLogger)
		chatGroup.GET("/metrics/prometheus",
			metricsNetworkMiddleware(metricsNets, chatLogger),
			publicRateLimitMiddleware(publicLimiter, chatLogger),
			gin.WrapH(promhttp.Handler()),
		)
	}

	// Warn if MongoDB URI appears to have no authentication
	if cfg.Database.URI != "" && !strings.Contains(cfg.Database.URI, "@") {
		chatLogger.Warn("MongoDB URI does not contain authentication credentials — ensure auth is configured for production")
	}

	chatLogger.Info("Supportchat service registered successfully",
		"websocket_endpoint", cfg.Server.PathPrefix+"/ws",
		"admin_endpoints", cfg.Server.PathPrefix+"/admin/*, "+cfg.Server.PathPrefix+"/chats/*",
		"health_endpoints", cfg.Server.PathPrefix+"/healthz, "+cfg.Server.PathPrefix+"/readyz",
		"metrics_endpoint", cfg.Server.PathPrefix+"/metrics/prometheus",
	)

	return nil
}

// chatResponse is the JSON shape of a chat in dashboard responses
type chatResponse struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"sessionId"`
	UserIP      string           `json:"userIp,omitempty"`
	UserAgent   string           `json:"userAgent,omitempty"`
	Status      string           `json:"status"`
	AIEnabled   bool             `json:"aiEnabled"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	LastMessage *messageResponse `json:"lastMessage,omitempty"`
}

// messageResponse is the JSON shape of a message in dashboard responses
type messageResponse struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	IsAI      bool      `json:"isAI"`
	CreatedAt time.Time `json:"createdAt"`
	SessionID string    `json:"sessionId,omitempty"`
}

func chatToResponse(chat *store.Chat) chatResponse {
	return chatResponse{
		ID:        chat.ID.Hex(),
		SessionID: chat.SessionID,
		UserIP:    chat.UserIP,
		UserAgent: chat.UserAgent,
		Status:    chat.Status,
		AIEnabled: chat.AIEnabled,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}
}

func messageToResponse(msg *store.Message) messageResponse {
	return messageResponse{
		ID:        msg.ID.Hex(),
		ChatID:    msg.ChatID.Hex(),
		Content:   msg.Content,
		Sender:    msg.Sender,
		IsAI:      msg.IsAI,
		CreatedAt: msg.CreatedAt,
		SessionID: msg.SessionID,
	}
}

func messagesToResponse(msgs []*store.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToResponse(m))
	}
	return out
}

// loginRequest is the dashboard login body
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// toggleAIRequest flips the per-chat AI flag. A pointer distinguishes a
// missing field from an explicit false.
type toggleAIRequest struct {
	AIEnabled *bool `json:"aiEnabled"`
}

// handleAdminLogin returns a handler that exchanges credentials for a
// dashboard bearer token
func handleAdminLogin(admins adminDirectory, issuer *auth.TokenIssuer, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		// No else needed: early return pattern (guard clause)
		if err := c.ShouldBindJSON(&req); err != nil {
			httperrors.RespondBadRequest(c, httperrors.MsgMissingCredentials)
			return
		}
		// No else needed: early return pattern (guard clause)
		if req.Username == "" || req.Password == "" {
			httperrors.RespondBadRequest(c, httperrors.MsgMissingCredentials)
			return
		}

		account, err := admins.Authenticate(req.Username, req.Password)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			if errors.Is(err, admin.ErrInvalidCredentials) {
				logger.Warn("Dashboard login rejected",
					"username", req.Username,
					"component", "auth")
				httperrors.RespondUnauthorized(c, httperrors.MsgInvalidCredentials)
				return
			}
			util.LogError(logger, "http", "authenticate admin", err)
			httperrors.RespondInternalError(c)
			return
		}

		token, err := issuer.IssueToken(account.ID.Hex(), account.Username)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			util.LogError(logger, "http", "issue dashboard token", err)
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"token": token,
			"admin": gin.H{
				"id":       account.ID.Hex(),
				"username": account.Username,
			},
		})
	}
}

// handleAdminMe returns a handler that resolves the authenticated account
func handleAdminMe(admins adminDirectory, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromContext(c, logger)
		// No else needed: early return pattern (guard clause)
		if !ok {
			return
		}

		account, err := admins.FindByID(claims.AdminID)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			if errors.Is(err, admin.ErrAdminNotFound) {
				// Token outlived the account
				httperrors.RespondInvalidToken(c)
				return
			}
			util.LogError(logger, "http", "resolve admin account", err, "admin_id", claims.AdminID)
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"admin": gin.H{
				"id":       account.ID.Hex(),
				"username": account.Username,
			},
		})
	}
}

// handleListChats returns a handler for the dashboard chat list
func handleListChats(chats chatDirectory, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		// No else needed: early return pattern (guard clause)
		if status != "" && !constants.ValidStatusFilters[status] {
			httperrors.RespondBadRequest(c, fmt.Sprintf("invalid status filter %q; allowed: active, closed", status))
			return
		}

		// Parse limit
		limit := 0
		limitStr := c.DefaultQuery("limit", "0")
		// No else needed: optional operation (limit parsing with validation)
		if n, err := fmt.Sscanf(limitStr, "%d", &limit); err != nil || n != 1 || limit < 0 {
			limit = 0
		}

		summaries, err := chats.ListChats(status, limit)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			// Log detailed error server-side
			util.LogError(logger, "http", "list chats", err)
			// Send generic error to client
			httperrors.RespondInternalError(c)
			return
		}

		out := make([]chatResponse, 0, len(summaries))
		for _, s := range summaries {
			resp := chatToResponse(&s.Chat)
			// No else needed: optional operation (only attach if the chat has messages)
			if s.LastMessage != nil {
				lm := messageToResponse(s.LastMessage)
				resp.LastMessage = &lm
			}
			out = append(out, resp)
		}

		c.JSON(constants.StatusOK, gin.H{
			"chats": out,
			"count": len(out),
		})
	}
}

// handleGetChat returns a handler for a single chat with its full transcript
func handleGetChat(chats chatDirectory, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		chat, ok := findChatOr404(c, chats, logger)
		// No else needed: early return pattern (guard clause)
		if !ok {
			return
		}

		messages, err := chats.ListMessagesByChat(chat.ID)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			util.LogError(logger, "http", "list chat messages", err, "chat_id", chat.ID.Hex())
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"chat":     chatToResponse(chat),
			"messages": messagesToResponse(messages),
		})
	}
}

// handleCloseChat returns a handler that closes a chat and tells the
// dashboards their list entry went stale
func handleCloseChat(chats chatDirectory, fanout *hub.Hub, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		chat, ok := findChatOr404(c, chats, logger)
		// No else needed: early return pattern (guard clause)
		if !ok {
			return
		}

		// No else needed: early return pattern (guard clause)
		if err := chats.CloseChat(chat.ID.Hex()); err != nil {
			if errors.Is(err, store.ErrChatNotFound) {
				httperrors.RespondNotFound(c, httperrors.MsgChatNotFound)
				return
			}
			util.LogError(logger, "http", "close chat", err, "chat_id", chat.ID.Hex())
			httperrors.RespondInternalError(c)
			return
		}

		publishChatUpdated(fanout, logger, chat.SessionID)

		chat.Status = constants.ChatStatusClosed
		c.JSON(constants.StatusOK, gin.H{
			"chat": chatToResponse(chat),
		})
	}
}

// handleToggleAI returns a handler that flips a chat's AI reply flag
func handleToggleAI(chats chatDirectory, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req toggleAIRequest
		// No else needed: early return pattern (guard clause)
		if err := c.ShouldBindJSON(&req); err != nil || req.AIEnabled == nil {
			httperrors.RespondBadRequest(c, "aiEnabled boolean is required")
			return
		}

		chatID := c.Param("id")
		// No else needed: early return pattern (guard clause)
		if err := chats.SetChatAIEnabled(chatID, *req.AIEnabled); err != nil {
			if errors.Is(err, store.ErrChatNotFound) {
				httperrors.RespondNotFound(c, httperrors.MsgChatNotFound)
				return
			}
			util.LogError(logger, "http", "toggle chat AI flag", err, "chat_id", chatID)
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"chatId":    chatID,
			"aiEnabled": *req.AIEnabled,
		})
	}
}

// handleListAllMessages returns a handler for the cross-chat message audit view
func handleListAllMessages(chats chatDirectory, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sender := c.Query("sender")
		// No else needed: early return pattern (guard clause)
		if sender != "" && !constants.ValidSenderFilters[sender] {
			httperrors.RespondBadRequest(c, fmt.Sprintf("invalid sender filter %q; allowed: user, admin, ai", sender))
			return
		}

		// Parse limit (the store caps it regardless)
		limit := 0
		limitStr := c.DefaultQuery("limit", "0")
		// No else needed: optional operation (limit parsing with validation)
		if n, err := fmt.Sscanf(limitStr, "%d", &limit); err != nil || n != 1 || limit < 0 {
			limit = 0
		}

		messages, err := chats.ListMessages(store.MessageListOptions{
			ChatID: c.Query("chatId"),
			Sender: sender,
			Limit:  limit,
		})
		// No else needed: early return pattern (guard clause)
		if err != nil {
			util.LogError(logger, "http", "list all messages", err)
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"messages": messagesToResponse(messages),
			"count":    len(messages),
		})
	}
}

// handleAIReply returns a handler that generates an AI reply for a chat on
// the operator's request, persists it, and fans it out like an admin send.
func handleAIReply(chats chatDirectory, responder *ai.Responder, broadcaster messageBroadcaster, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		chat, ok := findChatOr404(c, chats, logger)
		// No else needed: early return pattern (guard clause)
		if !ok {
			return
		}
		// No else needed: early return pattern (guard clause)
		if chat.Status == constants.ChatStatusClosed {
			httperrors.RespondConflict(c, httperrors.MsgChatClosed)
			return
		}

		transcript, err := chats.ListMessagesByChat(chat.ID)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			util.LogError(logger, "http", "load transcript for AI reply", err, "chat_id", chat.ID.Hex())
			httperrors.RespondInternalError(c)
			return
		}

		// The reply answers the visitor's latest message; everything before
		// it becomes conversation history
		lastVisitor := -1
		for i := len(transcript) - 1; i >= 0; i-- {
			// No else needed: optional operation (scan for the latest visitor message)
			if transcript[i].Sender == constants.SenderUser {
				lastVisitor = i
				break
			}
		}
		// No else needed: early return pattern (guard clause)
		if lastVisitor < 0 {
			httperrors.RespondBadRequest(c, "chat has no visitor message to reply to")
			return
		}

		history := make([]ai.Turn, 0, lastVisitor)
		for _, m := range transcript[:lastVisitor] {
			history = append(history, ai.Turn{Sender: m.Sender, Content: m.Content})
		}

		reply := responder.Respond(c.Request.Context(), transcript[lastVisitor].Content, history)

		msg, err := chats.CreateMessage(chat.ID, reply, constants.SenderAI, true)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			util.LogError(logger, "http", "persist AI reply", err, "chat_id", chat.ID.Hex())
			httperrors.RespondInternalError(c)
			return
		}

		// Keep the chat sorted by latest activity; delivery matters more
		// than the sort bump, so failures only log
		if err := chats.TouchChat(chat.ID); err != nil {
			util.LogError(logger, "http", "touch chat after AI reply", err, "chat_id", chat.ID.Hex())
		}

		broadcaster.BroadcastMessage(chat, msg)

		c.JSON(constants.StatusOK, gin.H{
			"message": messageToResponse(msg),
		})
	}
}

// findChatOr404 resolves the :id path param to a chat, writing the 404
// response itself when the chat does not exist.
func findChatOr404(c *gin.Context, chats chatDirectory, logger *golog.Logger) (*store.Chat, bool) {
	chatID := c.Param("id")

	chat, err := chats.FindChatByID(chatID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		if errors.Is(err, store.ErrChatNotFound) {
			httperrors.RespondNotFound(c, httperrors.MsgChatNotFound)
			return nil, false
		}
		util.LogError(logger, "http", "find chat", err, "chat_id", chatID)
		httperrors.RespondInternalError(c)
		return nil, false
	}

	return chat, true
}

// claimsFromContext extracts the validated claims stored by authMiddleware,
// writing the error response itself when they are missing or mistyped.
func claimsFromContext(c *gin.Context, logger *golog.Logger) (*auth.Claims, bool) {
	claimsInterface, exists := c.Get("claims")
	// No else needed: early return pattern (guard clause)
	if !exists {
		httperrors.RespondUnauthorized(c, "")
		return nil, false
	}

	claims, ok := claimsInterface.(*auth.Claims)
	// No else needed: early return pattern (guard clause)
	if !ok {
		util.LogError(logger, "http", "validate claims type", fmt.Errorf("invalid claims type in context"))
		httperrors.RespondInternalError(c)
		return nil, false
	}

	return claims, true
}

// publishChatUpdated tells every dashboard that a chat list entry changed
func publishChatUpdated(fanout *hub.Hub, logger *golog.Logger, sessionID string) {
	env, err := event.NewEnvelope(event.ChatUpdated, &event.ChatUpdatedPayload{SessionID: sessionID})
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(logger, "http", "build chat-updated event", err, "session_id", sessionID)
		return
	}
	frame, err := util.MarshalJSON(env)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(logger, "http", "encode chat-updated event", err, "session_id", sessionID)
		return
	}
	fanout.Publish(hub.TopicAdmins, frame)
}

// securityHeadersMiddleware adds standard HTTP security headers to all responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}

// metricsMiddleware records HTTP request duration for Prometheus monitoring
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.HTTPRequestDuration.With(prometheus.Labels{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": strconv.Itoa(c.Writer.Status()),
		}).Observe(time.Since(start).Seconds())
	}
}

// authMiddleware creates a Gin middleware for dashboard JWT authentication
func authMiddleware(validator *auth.JWTValidator, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract token from Authorization header
		authHeader := c.GetHeader("Authorization")
		token, err := util.ExtractBearerToken(authHeader)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			httperrors.RespondUnauthorized(c, httperrors.MsgInvalidAuthHeader)
			c.Abort()
			return
		}

		// Validate token
		claims, err := validator.ValidateToken(token)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			// Log detailed error server-side
			logger.Warn("Token validation failed",
				"error", err,
				"component", "auth")
			// Send generic error to client
			httperrors.RespondInvalidToken(c)
			c.Abort()
			return
		}

		// Store claims in context
		c.Set("claims", claims)
		c.Next()
	}
}

// adminRateLimitMiddleware creates a Gin middleware for admin endpoint rate limiting
func adminRateLimitMiddleware(limiter *ratelimit.MessageLimiter, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get claims from context (set by authMiddleware)
		claimsInterface, exists := c.Get("claims")
		// No else needed: early return pattern (guard clause - let authMiddleware handle missing claims)
		if !exists {
			// If no claims, let authMiddleware handle it
			c.Next()
			return
		}

		claims, ok := claimsInterface.(*auth.Claims)
		// No else needed: early return pattern (guard clause)
		if !ok {
			util.LogError(logger, "admin_rate_limit", "validate claims type", fmt.Errorf("invalid claims type in context"))
			httperrors.RespondInternalError(c)
			c.Abort()
			return
		}

		// Check rate limit
		// No else needed: early return pattern (guard clause)
		if !limiter.Allow(claims.AdminID) {
			retryAfter := limiter.GetRetryAfter(claims.AdminID)

			logger.Warn("Admin rate limit exceeded",
				"admin_id", claims.AdminID,
				"endpoint", c.Request.URL.Path,
				"retry_after_ms", retryAfter,
				"component", "admin_rate_limit")

			// Convert milliseconds to seconds with ceiling to avoid 0
			retryAfterSeconds := (retryAfter + constants.MillisecondsPerSecond - 1) / constants.MillisecondsPerSecond
			// No else needed: optional operation (minimum retry after enforcement)
			if retryAfterSeconds < constants.MinRetryAfterSeconds {
				retryAfterSeconds = constants.MinRetryAfterSeconds
			}
			c.Header(constants.HeaderRetryAfter, fmt.Sprintf("%d", retryAfterSeconds))

			// Return 429 Too Many Requests
			c.JSON(constants.StatusTooManyRequests, gin.H{
				"error":          "rate_limit_exceeded",
				"message":        constants.ErrMsgRateLimitExceeded,
				"retry_after_ms": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// publicRateLimitMiddleware creates a Gin middleware for rate limiting public endpoints
// (healthz, readyz, metrics) by client IP to prevent abuse.
func publicRateLimitMiddleware(limiter *ratelimit.MessageLimiter, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Use Gin's ClientIP() which respects trusted proxies to prevent X-Forwarded-For spoofing
		clientIP := c.ClientIP()

		if !limiter.Allow(clientIP) {
			retryAfter := limiter.GetRetryAfter(clientIP)
			retryAfterSeconds := (retryAfter + constants.MillisecondsPerSecond - 1) / constants.MillisecondsPerSecond
			if retryAfterSeconds < constants.MinRetryAfterSeconds {
				retryAfterSeconds = constants.MinRetryAfterSeconds
			}
			c.Header(constants.HeaderRetryAfter, fmt.Sprintf("%d", retryAfterSeconds))

			c.JSON(constants.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": constants.ErrMsgRateLimitExceeded,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// handleHealthCheck returns a handler for liveness probe endpoint.
// If we can respond, the process is alive.
func handleHealthCheck(c *gin.Context) {
	c.JSON(constants.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReadyCheck returns a handler for readiness probe endpoint.
// It checks the critical dependencies before declaring the service ready.
func handleReadyCheck(mongo *gomongo.Mongo, cfg *config.Config, responder *ai.Responder, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := make(map[string]interface{})
		allReady := true

		// Check MongoDB connection
		// No else needed: optional operation (MongoDB health check)
		if mongo == nil {
			checks["mongodb"] = map[string]interface{}{
				"status": "not ready",
				"reason": "MongoDB not initialized",
			}
			allReady = false
		} else {
			ctx, cancel := util.NewTimeoutContext(constants.HealthCheckTimeout)
			defer cancel()

			testColl := mongo.Coll(cfg.Database.Database, cfg.Database.ChatCollection)
			err := testColl.Ping(ctx)
			// No else needed: optional operation (health check result recording)
			if err != nil {
				// Log detailed error server-side
				logger.Warn("MongoDB health check failed",
					"error", err,
					"component", "health")

				// Send generic error to client
				checks["mongodb"] = map[string]interface{}{
					"status": "not ready",
					"reason": "Database connectivity check failed",
				}
				allReady = false
			} else {
				checks["mongodb"] = map[string]interface{}{
					"status": "ready",
				}
			}
		}

		// The AI responder is never a readiness blocker: without a provider
		// it serves canned fallbacks
		mode := "fallback"
		// No else needed: optional operation (mode reporting)
		if responder != nil && responder.ProviderConfigured() {
			mode = "provider"
		}
		checks["ai"] = map[string]interface{}{
			"status": "ready",
			"mode":   mode,
		}

		// Determine overall status
		status := "ready"
		statusCode := constants.StatusOK
		// No else needed: optional operation (status code adjustment based on health)
		if !allReady {
			status = "not ready"
			statusCode = constants.StatusServiceUnavailable
		}

		c.JSON(statusCode, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}

// parseNetworks parses a comma-separated list of CIDR network strings.
func parseNetworks(networksStr string, logger *golog.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range strings.Split(networksStr, ",") {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("Invalid CIDR in metrics allowed networks", "cidr", cidr, "error", err)
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

// metricsNetworkMiddleware restricts access to the metrics endpoint to configured networks.
func metricsNetworkMiddleware(allowedNets []*net.IPNet, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// If no networks configured, allow all (development mode)
		if len(allowedNets) == 0 {
			c.Next()
			return
		}

		clientIP := net.ParseIP(c.ClientIP())
		if clientIP == nil {
			logger.Warn("Could not parse client IP for metrics access", "ip", c.ClientIP())
			httperrors.RespondForbidden(c)
			c.Abort()
			return
		}

		for _, ipNet := range allowedNets {
			if ipNet.Contains(clientIP) {
				c.Next()
				return
			}
		}

		logger.Warn("Metrics access denied from unauthorized network",
			"client_ip", c.ClientIP(),
			"component", "metrics")
		httperrors.RespondForbidden(c)
		c.Abort()
	}
}

// Shutdown gracefully shuts down the supportchat service.
// It closes all active WebSocket connections and stops background cleanup.
// Call it when the application receives SIGTERM or SIGINT; it respects the
// context deadline and forces shutdown when the deadline is exceeded.
func Shutdown(ctx context.Context) error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()

	// No else needed: optional operation (logging during shutdown)
	if globalLogger != nil {
		globalLogger.Info("Starting graceful shutdown of supportchat service")
	}

	// Stop admin rate limiter cleanup
	// No else needed: optional operation (cleanup stop)
	if globalAdminLimiter != nil {
		globalAdminLimiter.StopCleanup()
	}

	// Stop public rate limiter cleanup
	if globalPublicLimiter != nil {
		globalPublicLimiter.StopCleanup()
	}

	// Close all WebSocket connections with context deadline
	// No else needed: optional operation (WebSocket shutdown with error handling)
	if globalWSHandler != nil {
		// No else needed: early return pattern (guard clause)
		if err := globalWSHandler.ShutdownWithContext(ctx); err != nil {
			// No else needed: optional operation (error logging)
			if globalLogger != nil {
				globalLogger.Warn("WebSocket handler shutdown error", "error", err)
			}
			return err
		}
	}

	// No else needed: optional operation (final logging)
	if globalLogger != nil {
		globalLogger.Info("Supportchat service shutdown complete")
	}

	return nil
}
