package auth

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any dashboard token, validation should accept it if and only if it has
// a valid signature and has not expired, and the claims extracted must match
// the claims issued.
func TestProperty_TokenValidation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	validator := NewJWTValidator(testSecret)

	properties.Property("valid tokens with correct signature and not expired should be accepted", prop.ForAll(
		func(adminID, username string, expiresInMinutes int) bool {
			tokenString := createTestToken(adminID, username, time.Duration(expiresInMinutes)*time.Minute)

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				return false
			}
			return claims.AdminID == adminID && claims.Username == username
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.IntRange(1, 120), // 1 to 120 minutes in the future
	))

	properties.Property("expired tokens should be rejected with error", prop.ForAll(
		func(adminID string, expiredMinutesAgo int) bool {
			tokenString := createTestToken(adminID, adminID, -time.Duration(expiredMinutesAgo)*time.Minute)

			_, err := validator.ValidateToken(tokenString)
			return err != nil
		},
		gen.Identifier(),
		gen.IntRange(1, 120), // 1 to 120 minutes ago
	))

	properties.Property("tokens signed with a different secret are rejected", prop.ForAll(
		func(adminID string) bool {
			other := NewTokenIssuer("completely-different-secret-value")
			tokenString, err := other.IssueToken(adminID, adminID)
			if err != nil {
				return false
			}

			_, err = validator.ValidateToken(tokenString)
			return err != nil
		},
		gen.Identifier(),
	))

	properties.Property("issue then validate round-trips the claims", prop.ForAll(
		func(adminID, username string) bool {
			issuer := NewTokenIssuer(testSecret)
			tokenString, err := issuer.IssueToken(adminID, username)
			if err != nil {
				return false
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				return false
			}
			return claims.AdminID == adminID && claims.Username == username
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
