package service

import (
	"errors"
	"fmt"
)

// Service errors. Handlers map each to a distinct status code.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidSession      = errors.New("invalid or expired session")
	ErrInvalidAPIKey       = errors.New("invalid or expired API key")
	ErrCSRFMismatch        = errors.New("csrf token mismatch")
	ErrUnknownUser         = errors.New("unknown user")
	ErrKeyNotFound         = errors.New("API key not found")
	ErrPersistence         = errors.New("persistence failure")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNotFound            = errors.New("not found")
	ErrQuotaExceeded       = errors.New("usage quota exceeded")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidSecurityCode = errors.New("invalid security code")
	ErrInvalidPlan         = errors.New("invalid plan")
	ErrInvalidInput        = errors.New("invalid input")
)

// persistenceError wraps a store failure so that both ErrPersistence and
// the underlying cause match errors.Is.
func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrPersistence, err))
}

// inputError tags a validation message with ErrInvalidInput.
func inputError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
