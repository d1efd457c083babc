package util

import (
	"fmt"
)

// ValidateNotEmpty checks if a string is not empty and returns an error if it is.
//
// Example:
//
//	if err := util.ValidateNotEmpty(sessionID, "session ID"); err != nil {
//	    return err
//	}
func ValidateNotEmpty(value, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateMinLength checks if a string meets minimum length requirement.
//
// Example:
//
//	if err := util.ValidateMinLength(secret, 32, "JWT secret"); err != nil {
//	    return err
//	}
func ValidateMinLength(value string, minLength int, fieldName string) error {
	if len(value) < minLength {
		return fmt.Errorf("%s must be at least %d characters, got %d", fieldName, minLength, len(value))
	}
	return nil
}

// ValidateExactLength checks if a byte slice has exact length.
// This is useful for encryption key validation.
//
// Example:
//
//	if err := util.ValidateExactLength(key, 32, "encryption key"); err != nil {
//	    return err
//	}
func ValidateExactLength(value []byte, exactLength int, fieldName string) error {
	if len(value) != exactLength && len(value) != 0 {
		return fmt.Errorf("%s must be exactly %d bytes, got %d bytes", fieldName, exactLength, len(value))
	}
	return nil
}

// ValidatePositive checks if a number is positive.
//
// Example:
//
//	if err := util.ValidatePositive(limit, "limit"); err != nil {
//	    return err
//	}
func ValidatePositive(value int, fieldName string) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive, got %d", fieldName, value)
	}
	return nil
}
