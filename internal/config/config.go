// Package config loads and validates the application configuration from
// environment variables, falling back to compiled defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/real-rm/supportchat/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Database DatabaseConfig
	Security SecurityConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port                   int
	RateLimit              int           // WebSocket events per minute per client
	AdminRateLimit         int           // Admin endpoint rate limit (requests per minute)
	AdminRateWindow        time.Duration // Admin rate limit window
	PathPrefix             string        // HTTP path prefix for all routes (default: "/supportchat")
	FrontendOrigin         string        // Widget/dashboard origin for CORS and WebSocket origin checks
	TrustedProxies         string        // Comma-separated CIDR list for client IP resolution
	MetricsAllowedNetworks string        // Comma-separated CIDR list allowed to scrape metrics
}

// AIConfig holds AI responder configuration. An empty APIKey puts the
// responder in fallback-only mode.
type AIConfig struct {
	APIKey   string
	Endpoint string
	Model    string
}

// DatabaseConfig holds MongoDB configuration
type DatabaseConfig struct {
	URI               string
	Database          string
	ChatCollection    string
	MessageCollection string
	AdminCollection   string
	ConnectTimeout    time.Duration
	RetryAttempts     int           // Maximum number of retry attempts for transient errors
	RetryDelay        time.Duration // Initial delay between retry attempts
	RetryMaxDelay     time.Duration // Maximum delay between retry attempts
}

// SecurityConfig holds secrets and account bootstrap settings
type SecurityConfig struct {
	JWTSecret            string
	EncryptionKey        string // Optional 32-byte key for message content encryption
	DefaultAdminUsername string
	DefaultAdminPassword string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:                   getEnvAsInt("SERVER_PORT", constants.DefaultPort),
			RateLimit:              getEnvAsInt("RATE_LIMIT", constants.DefaultRateLimit),
			AdminRateLimit:         getEnvAsInt("ADMIN_RATE_LIMIT", constants.DefaultAdminRateLimit),
			AdminRateWindow:        getEnvAsDuration("ADMIN_RATE_WINDOW", constants.DefaultRateWindow),
			PathPrefix:             getEnv("SUPPORTCHAT_PATH_PREFIX", constants.DefaultPathPrefix),
			FrontendOrigin:         getEnv("FRONTEND_URL", constants.DefaultFrontendOrigin),
			TrustedProxies:         getEnv("TRUSTED_PROXIES", constants.DefaultTrustedProxies),
			MetricsAllowedNetworks: getEnv("METRICS_ALLOWED_NETWORKS", constants.DefaultMetricsAllowedNetworks),
		},
		AI: AIConfig{
			APIKey:   getEnv("OPENAI_API_KEY", ""),
			Endpoint: getEnv("AI_ENDPOINT", ""),
			Model:    getEnv("AI_MODEL", constants.DefaultAIModel),
		},
		Database: DatabaseConfig{
			URI:               getEnv("MONGO_URI", constants.DefaultMongoURI),
			Database:          getEnv("MONGO_DATABASE", constants.DefaultDatabase),
			ChatCollection:    getEnv("MONGO_CHAT_COLLECTION", constants.DefaultChatCollection),
			MessageCollection: getEnv("MONGO_MESSAGE_COLLECTION", constants.DefaultMessageCollection),
			AdminCollection:   getEnv("MONGO_ADMIN_COLLECTION", constants.DefaultAdminCollection),
			ConnectTimeout:    getEnvAsDuration("MONGO_CONNECT_TIMEOUT", constants.DefaultContextTimeout),
			RetryAttempts:     getEnvAsInt("MONGO_RETRY_ATTEMPTS", constants.MaxRetryAttempts),
			RetryDelay:        getEnvAsDuration("MONGO_RETRY_DELAY", constants.InitialRetryDelay),
			RetryMaxDelay:     getEnvAsDuration("MONGO_RETRY_MAX_DELAY", constants.MaxRetryDelay),
		},
		Security: SecurityConfig{
			JWTSecret:            getEnv("JWT_SECRET", ""),
			EncryptionKey:        getEnv("ENCRYPTION_KEY", ""),
			DefaultAdminUsername: getEnv("DEFAULT_ADMIN_USERNAME", constants.DefaultAdminUsername),
			DefaultAdminPassword: getEnv("DEFAULT_ADMIN_PASSWORD", constants.DefaultAdminPassword),
		},
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server port must be between 1 and 65535"))
	}
	if c.Server.RateLimit <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	if c.Server.AdminRateLimit <= 0 {
		errs = append(errs, errors.New("admin rate limit must be positive"))
	}
	if c.Server.AdminRateWindow <= 0 {
		errs = append(errs, errors.New("admin rate window must be positive"))
	}
	if c.Server.PathPrefix == "" {
		errs = append(errs, errors.New("path prefix cannot be empty"))
	} else if !strings.HasPrefix(c.Server.PathPrefix, "/") {
		errs = append(errs, errors.New("path prefix must start with '/'"))
	}

	errs = append(errs, c.validateJWTSecret()...)

	// Encryption is optional, but a configured key must be AES-256 sized
	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) != constants.EncryptionKeyLength {
		errs = append(errs, fmt.Errorf(
			"encryption key must be exactly %d bytes (got %d)",
			constants.EncryptionKeyLength, len(c.Security.EncryptionKey)))
	}

	// Validate database config
	if c.Database.URI == "" {
		errs = append(errs, errors.New("database URI is required"))
	}
	if c.Database.Database == "" {
		errs = append(errs, errors.New("database name is required"))
	}
	if c.Database.ChatCollection == "" {
		errs = append(errs, errors.New("chat collection is required"))
	}
	if c.Database.MessageCollection == "" {
		errs = append(errs, errors.New("message collection is required"))
	}
	if c.Database.AdminCollection == "" {
		errs = append(errs, errors.New("admin collection is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// validateJWTSecret enforces minimum secret strength
func (c *Config) validateJWTSecret() []error {
	var errs []error

	if c.Security.JWTSecret == "" {
		return append(errs, errors.New("JWT secret is required"))
	}

	// Check minimum length (32 characters for strong security)
	if len(c.Security.JWTSecret) < constants.MinJWTSecretLength {
		errs = append(errs, fmt.Errorf(
			"JWT secret must be at least %d characters (got %d). "+
				"Generate a strong secret with: openssl rand -base64 32",
			constants.MinJWTSecretLength, len(c.Security.JWTSecret)))
	}

	// Check for common weak secrets
	lowerSecret := strings.ToLower(c.Security.JWTSecret)
	for _, weak := range constants.WeakSecrets {
		if strings.Contains(lowerSecret, weak) {
			errs = append(errs, fmt.Errorf(
				"JWT secret appears to be weak (contains '%s'). "+
					"Use a cryptographically random secret generated with: openssl rand -base64 32",
				weak))
			break
		}
	}

	return errs
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
