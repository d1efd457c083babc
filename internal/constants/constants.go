// Package constants provides centralized constant definitions for the supportchat application.
// This eliminates magic numbers and strings throughout the codebase.
package constants

import "time"

// HTTP Status Codes
const (
	StatusOK                 = 200
	StatusTooManyRequests    = 429
	StatusServiceUnavailable = 503
)

// Timeouts for various operations
const (
	DefaultContextTimeout = 10 * time.Second // Standard database operations
	LongContextTimeout    = 30 * time.Second // Complex queries and index creation
	AIRequestTimeout      = 30 * time.Second // AI completion requests
	MongoIndexTimeout     = 30 * time.Second // MongoDB index creation
	ShortTimeout          = 2 * time.Second  // Quick operations like health checks
	MessageWriteTimeout   = 5 * time.Second  // Persisting chat messages
	ChatUpdateTimeout     = 5 * time.Second  // Chat status/flag updates
	HealthCheckTimeout    = 2 * time.Second  // Health check operations
)

// Sizes and Limits
const (
	DefaultMaxMessageSize = 1048576 // 1MB in bytes for WebSocket frames
	MaxMessageLength      = 4000    // Maximum characters in a single chat message
	EncryptionKeyLength   = 32      // AES-256 requires exactly 32 bytes
	DefaultChatLimit      = 100     // Default number of chats to return
	MaxMessageQueryLimit  = 1000    // Cap for the cross-chat message listing
	HistoryTurnLimit      = 5       // Recent messages fed to the AI responder
	DefaultRateLimit      = 100     // Default messages per minute per client
	DefaultAdminRateLimit = 20      // Default admin requests per minute
	MaxRetryAttempts      = 3       // Maximum retry attempts for transient errors
	MaxEventsPerClient    = 1000    // Maximum rate limit events tracked per client
	MaxClientsTracked     = 100000  // Maximum distinct clients in rate limiter map
	PublicEndpointRate    = 60      // Requests per minute for public endpoints (healthz, readyz, metrics)
	MaxAIErrorBodySize    = 1024    // Max bytes to read from AI provider error responses
	SessionTokenRandLen   = 9       // Base36 characters in the random token suffix
)

// HTTP Server Timeouts (for standalone server mode)
const (
	HTTPReadTimeout  = 15 * time.Second  // Maximum time to read the entire request
	HTTPWriteTimeout = 60 * time.Second  // Maximum time to write the response
	HTTPIdleTimeout  = 120 * time.Second // Maximum time to keep idle connections alive
)

// Durations for background operations
const (
	DefaultRateWindow      = 1 * time.Minute // Rate limiting window
	DefaultCleanupInterval = 5 * time.Minute // Cleanup goroutine interval
	InitialRetryDelay      = 100 * time.Millisecond
	MaxRetryDelay          = 2 * time.Second
	RetryMultiplier        = 2.0
	AdminTokenTTL          = 7 * 24 * time.Hour // Dashboard JWT lifetime
	AlertCooldown          = 5 * time.Minute    // Minimum gap between admin alerts
)

// Sender Types for messages
const (
	SenderUser  = "user"
	SenderAdmin = "admin"
	SenderAI    = "ai"
)

// Chat Status Values
const (
	ChatStatusActive = "active"
	ChatStatusClosed = "closed"
)

// Default Configuration Values
const (
	DefaultMongoURI           = "mongodb://localhost:27017"
	DefaultDatabase           = "supportchat"
	DefaultChatCollection     = "chats"
	DefaultMessageCollection  = "messages"
	DefaultAdminCollection    = "admins"
	DefaultAIModel            = "gpt-3.5-turbo"
	DefaultPort               = 8080
	DefaultLogLevel           = "info"
	DefaultLogDir             = "logs"
	DefaultPathPrefix         = "/supportchat" // Default HTTP path prefix for all routes
	DefaultAdminUsername      = "admin"
	DefaultAdminPassword      = "admin123"
	DefaultFrontendOrigin     = "http://localhost:5173"
	UnknownSessionPlaceholder = "N/A" // Shown when a message's chat no longer resolves
)

// HTTP Headers
const (
	HeaderAuthorization = "Authorization"
	HeaderRetryAfter    = "Retry-After"
	BearerPrefix        = "Bearer "
	BearerPrefixLength  = 7
)

// Error Messages
const (
	ErrMsgInvalidAuthHeader = "Invalid or missing Authorization header"
	ErrMsgInvalidToken      = "Invalid or expired token"
	ErrMsgInvalidCreds      = "Invalid credentials"
	ErrMsgMissingCreds      = "Username and password are required"
	ErrMsgChatNotFound      = "Chat not found"
	ErrMsgInternalError     = "Internal server error"
	ErrMsgRateLimitExceeded = "Too many requests. Please try again later."
)

// MongoDB Field Names (BSON tags)
const (
	MongoFieldID        = "_id"
	MongoFieldSessionID = "sessionId"
	MongoFieldChatID    = "chatId"
	MongoFieldStatus    = "status"
	MongoFieldAIEnabled = "aiEnabled"
	MongoFieldSender    = "sender"
	MongoFieldIsAI      = "isAI"
	MongoFieldContent   = "content"
	MongoFieldTimestamp = "ts"
	MongoFieldModified  = "_mt"
	MongoFieldUserIP    = "userIp"
	MongoFieldUserAgent = "userAgent"
	MongoFieldUsername  = "username"
	MongoFieldPassword  = "password"
)

// MongoDB Index Names
const (
	IndexSessionID     = "idx_session_id"
	IndexChatTimestamp = "idx_chat_ts"
	IndexSenderFilter  = "idx_sender"
	IndexChatModified  = "idx_chat_mt"
	IndexAdminUsername = "idx_admin_username"
)

// Weak Secrets for validation (security check)
var WeakSecrets = []string{
	"secret", "test", "test123", "password", "admin",
	"changeme", "default", "example", "demo", "12345",
	"placeholder",
}

// Minimum Security Requirements
const (
	MinJWTSecretLength = 32 // Minimum length for JWT secret (256 bits)
	MinPasswordLength  = 8  // Minimum password length for new admin accounts
)

// Retry After Calculation
const (
	MillisecondsPerSecond = 1000
	MinRetryAfterSeconds  = 1 // Minimum retry-after value in seconds
)

// Network configuration defaults
const (
	DefaultTrustedProxies         = "10.0.0.0/8,172.16.0.0/12,192.168.0.0/16"
	DefaultMetricsAllowedNetworks = "10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8"
)

// Valid status filters for the chat listing endpoint
var ValidStatusFilters = map[string]bool{
	ChatStatusActive: true,
	ChatStatusClosed: true,
}

// Valid sender filters for the cross-chat message listing
var ValidSenderFilters = map[string]bool{
	SenderUser:  true,
	SenderAdmin: true,
	SenderAI:    true,
}

// AI request parameters
const (
	AIMaxTokens   = 150
	AITemperature = 0.7
)
