// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/atlasgate/atlasgate/internal/model"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResponse builds an ErrorResponse.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}

// MessageResponse acknowledges an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest is the body of POST /auth/register and /auth/register-admin.
// SecurityCode is only read by the admin endpoint.
type RegisterRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Plan         string `json:"plan,omitempty"`
	SecurityCode string `json:"securityCode,omitempty"`
}

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	Message string             `json:"message"`
	User    model.UserResponse `json:"user"`
}

// LoginRequest is the body of POST /auth/login and /auth/admin-login.
// Either Email or Username identifies the account.
type LoginRequest struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// Identifier returns the login identifier, preferring Email.
func (r LoginRequest) Identifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

// LoginResponse is returned after a successful login. APIKey is only set
// when the login minted a new key.
type LoginResponse struct {
	Message      string             `json:"message"`
	Token        string             `json:"token"`
	ExpiresAt    time.Time          `json:"expiresAt"`
	CSRFToken    string             `json:"csrfToken"`
	APIKey       string             `json:"apiKey,omitempty"`
	APIKeyIssued bool               `json:"apiKeyIssued"`
	User         model.UserResponse `json:"user"`
}
