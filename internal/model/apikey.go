package model

import "time"

// APIKey represents a long-lived API key owned by one user.
// Only the SHA-256 hash of the key is stored.
type APIKey struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	KeyHash   string    `json:"-"` // Never serialize
	KeyPrefix string    `json:"key_prefix"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the key is past its expiry at the given time.
func (k *APIKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// APIKeyResponse represents the response for an API key (without secrets).
type APIKeyResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	KeyPrefix string    `json:"key_prefix"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ToResponse converts an APIKey to APIKeyResponse.
func (k *APIKey) ToResponse() APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		UserID:    k.UserID,
		KeyPrefix: k.KeyPrefix,
		CreatedAt: k.CreatedAt,
		ExpiresAt: k.ExpiresAt,
	}
}

// APIKeyCreateResponse includes the plaintext key (shown only once).
type APIKeyCreateResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Key       string    `json:"api_key"` // Plaintext - display once only!
	KeyPrefix string    `json:"key_prefix"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthContext holds the identity behind an API key request.
// This is injected into the request context by the API key middleware.
type AuthContext struct {
	KeyID     int64
	KeyPrefix string
	UserID    int64
	Role      Role
	Plan      string
}
