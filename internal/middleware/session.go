package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/atlasgate/atlasgate/internal/auth"
)

// SessionValidator verifies session tokens without touching the store.
// Satisfied by *service.AuthService.
type SessionValidator interface {
	ValidateSession(token string) (*auth.SessionClaims, error)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger   *slog.Logger
	Sessions SessionValidator
}

// SessionAuth requires a valid session token, read from a Bearer header
// or the session cookie, and injects its claims into the context.
func SessionAuth(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				logAuthFailure(cfg.Logger, r, "missing_session")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Login required")
				return
			}

			claims, err := cfg.Sessions.ValidateSession(token)
			if err != nil {
				logAuthFailure(cfg.Logger, r, "invalid_session")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired session")
				return
			}

			if id, err := claims.UserID(); err == nil {
				noteCaller(r.Context(), id, "")
			}
			ctx := auth.ContextWithSession(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) string {
	if token := bearerToken(r); token != "" && !strings.HasPrefix(token, auth.APIKeyPrefix) {
		return token
	}
	if c, err := r.Cookie(auth.SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}
