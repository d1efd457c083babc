// Package auth issues and validates the JWT bearer tokens used by the
// admin dashboard.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/real-rm/supportchat/internal/constants"
)

var (
	// ErrInvalidToken is returned when the token is malformed or invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidSignature is returned when the token signature is invalid
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrMissingClaims is returned when required claims are missing
	ErrMissingClaims = errors.New("missing required claims")
)

// Claims represents the JWT claims extracted from a dashboard token
type Claims struct {
	AdminID  string
	Username string
}

// TokenIssuer signs dashboard tokens after a successful login.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer with the given secret. Tokens live for
// the standard dashboard TTL.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    constants.AdminTokenTTL,
	}
}

// IssueToken signs a token for the given admin account.
func (i *TokenIssuer) IssueToken(adminID, username string) (string, error) {
	// No else needed: early return pattern (guard clause)
	if adminID == "" {
		return "", fmt.Errorf("%w: admin id is empty", ErrMissingClaims)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"admin_id": adminID,
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(i.ttl).Unix(),
	})

	signed, err := token.SignedString(i.secret)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// JWTValidator handles JWT token validation
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a new JWT validator with the given secret
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{
		secret: []byte(secret),
	}
}

// ValidateToken validates a JWT token and extracts the claims
// It verifies:
// - Token signature
// - Token expiration
// - Required claims (admin_id)
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	// Parse and validate the token
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		// No else needed: early return pattern (guard clause)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method: %v", ErrInvalidSignature, token.Header["alg"])
		}
		return v.secret, nil
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		// Check for specific error types
		// No else needed: early return pattern (guard clause)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		// No else needed: early return pattern (guard clause)
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// No else needed: early return pattern (guard clause)
	if !token.Valid {
		return nil, fmt.Errorf("%w: token is not valid", ErrInvalidToken)
	}

	// Extract claims
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	// No else needed: early return pattern (guard clause)
	if !ok {
		return nil, fmt.Errorf("%w: unable to parse claims", ErrInvalidToken)
	}

	// Extract admin_id
	adminID, ok := mapClaims["admin_id"].(string)
	// No else needed: early return pattern (guard clause)
	if !ok || adminID == "" {
		return nil, fmt.Errorf("%w: admin_id claim missing or invalid", ErrMissingClaims)
	}

	// Extract username (optional field)
	username, _ := mapClaims["username"].(string)
	// No else needed: optional operation (set default value)
	// If username is not present or empty, default to admin_id
	if username == "" {
		username = adminID
	}

	return &Claims{
		AdminID:  adminID,
		Username: username,
	}, nil
}
