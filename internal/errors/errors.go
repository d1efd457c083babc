// Package errors provides error handling functionality for the supportchat application.
// It defines error categories, error types, and error message generation.
package errors

import (
	"fmt"

	"github.com/real-rm/supportchat/internal/event"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryAuth represents authentication and authorization errors
	CategoryAuth ErrorCategory = "auth"
	// CategoryValidation represents input validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents lookups that resolved to nothing
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryService represents service-level errors (AI, database, mail)
	CategoryService ErrorCategory = "service"
	// CategoryRateLimit represents rate limiting errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Authentication errors
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken       ErrorCode = "EXPIRED_TOKEN"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"

	// Validation errors
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"

	// Not-found errors
	ErrCodeChatNotFound    ErrorCode = "CHAT_NOT_FOUND"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeAdminNotFound   ErrorCode = "ADMIN_NOT_FOUND"

	// Service errors
	ErrCodeAIUnavailable ErrorCode = "AI_UNAVAILABLE"
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrCodeServiceError  ErrorCode = "SERVICE_ERROR"

	// Rate limiting errors
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	ErrCodeConnectionLimit ErrorCode = "CONNECTION_LIMIT_EXCEEDED"
)

// ChatError represents an application error with category and recoverability information
type ChatError struct {
	Category    ErrorCategory
	Code        ErrorCode
	Message     string
	Recoverable bool
	RetryAfter  int // milliseconds, only for rate limit errors
	Cause       error
}

// Error implements the error interface
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// IsFatal returns true if the error is fatal and requires connection closure
func (e *ChatError) IsFatal() bool {
	return !e.Recoverable
}

// ToErrorInfo converts a ChatError to an event.ErrorInfo for the wire protocol
func (e *ChatError) ToErrorInfo() *event.ErrorInfo {
	return &event.ErrorInfo{
		Code:        string(e.Code),
		Message:     e.Message,
		Recoverable: e.Recoverable,
		RetryAfter:  e.RetryAfter,
	}
}

// NewAuthError creates a new authentication error (fatal)
func NewAuthError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryAuth,
		Code:        code,
		Message:     message,
		Recoverable: false, // Auth errors are fatal
		Cause:       cause,
	}
}

// NewValidationError creates a new validation error (recoverable)
func NewValidationError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryValidation,
		Code:        code,
		Message:     message,
		Recoverable: true, // Validation errors are recoverable
		Cause:       cause,
	}
}

// NewNotFoundError creates a new not-found error (recoverable)
func NewNotFoundError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryNotFound,
		Code:        code,
		Message:     message,
		Recoverable: true, // The client may retry with a valid identifier
		Cause:       cause,
	}
}

// NewServiceError creates a new service error (recoverable with retry)
func NewServiceError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryService,
		Code:        code,
		Message:     message,
		Recoverable: true, // Service errors are recoverable
		Cause:       cause,
	}
}

// NewRateLimitError creates a new rate limit error (recoverable with retry after)
func NewRateLimitError(code ErrorCode, message string, retryAfter int, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryRateLimit,
		Code:        code,
		Message:     message,
		Recoverable: true,
		RetryAfter:  retryAfter,
		Cause:       cause,
	}
}

// Common error constructors for convenience

// ErrInvalidToken creates an invalid token error
func ErrInvalidToken(cause error) *ChatError {
	return NewAuthError(ErrCodeInvalidToken, "Invalid authentication token", cause)
}

// ErrExpiredToken creates an expired token error
func ErrExpiredToken(cause error) *ChatError {
	return NewAuthError(ErrCodeExpiredToken, "Authentication token has expired", cause)
}

// ErrInvalidCredentials creates an invalid credentials error
func ErrInvalidCredentials(cause error) *ChatError {
	return NewAuthError(ErrCodeInvalidCredentials, "Invalid credentials", cause)
}

// ErrInvalidMessageFormat creates an invalid message format error
func ErrInvalidMessageFormat(details string, cause error) *ChatError {
	return NewValidationError(ErrCodeInvalidFormat, fmt.Sprintf("Invalid message format: %s", details), cause)
}

// ErrMissingField creates a missing field error
func ErrMissingField(fieldName string) *ChatError {
	return NewValidationError(ErrCodeMissingField, fmt.Sprintf("Required field missing: %s", fieldName), nil)
}

// ErrChatNotFound creates a chat not found error
func ErrChatNotFound(chatID string) *ChatError {
	return NewNotFoundError(ErrCodeChatNotFound, fmt.Sprintf("Chat not found: %s", chatID), nil)
}

// ErrSessionNotFound creates a session not found error
func ErrSessionNotFound(sessionID string) *ChatError {
	return NewNotFoundError(ErrCodeSessionNotFound, fmt.Sprintf("Session not found: %s", sessionID), nil)
}

// ErrAIUnavailable creates an AI unavailable error
func ErrAIUnavailable(cause error) *ChatError {
	return NewServiceError(ErrCodeAIUnavailable, "AI service is temporarily unavailable", cause)
}

// ErrDatabaseError creates a database error
func ErrDatabaseError(cause error) *ChatError {
	return NewServiceError(ErrCodeDatabaseError, "Database operation failed", cause)
}

// ErrTooManyRequests creates a too many requests error
func ErrTooManyRequests(retryAfter int) *ChatError {
	return NewRateLimitError(ErrCodeTooManyRequests,
		"Too many requests, please slow down", retryAfter, nil)
}

// ErrConnectionLimitExceeded creates a connection limit exceeded error
func ErrConnectionLimitExceeded(retryAfter int) *ChatError {
	return NewRateLimitError(ErrCodeConnectionLimit,
		"Connection limit exceeded, please try again later", retryAfter, nil)
}
