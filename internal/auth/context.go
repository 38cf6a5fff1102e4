package auth

import (
	"context"

	"github.com/atlasgate/atlasgate/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	authContextKey    contextKey = "auth_context"
	sessionContextKey contextKey = "session_claims"
)

// ContextWithAuth adds an API key AuthContext to the context.
func ContextWithAuth(ctx context.Context, auth *model.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// AuthFromContext retrieves AuthContext from the context.
// Returns nil if not present.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	auth, ok := ctx.Value(authContextKey).(*model.AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// ContextWithSession adds verified session claims to the context.
func ContextWithSession(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, sessionContextKey, claims)
}

// SessionFromContext retrieves session claims from the context.
// Returns nil if not present.
func SessionFromContext(ctx context.Context) *SessionClaims {
	claims, ok := ctx.Value(sessionContextKey).(*SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

// UserIDFromContext returns the caller's user id from either an API key or a
// session. Returns 0 if not authenticated.
func UserIDFromContext(ctx context.Context) int64 {
	if a := AuthFromContext(ctx); a != nil {
		return a.UserID
	}
	if s := SessionFromContext(ctx); s != nil {
		id, _ := s.UserID()
		return id
	}
	return 0
}
