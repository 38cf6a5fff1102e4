package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/service"
)

// APIKeyHeader is the dedicated header for API keys.
const APIKeyHeader = "X-API-Key"

// KeyAuthenticator resolves a plaintext API key. Satisfied by
// *service.APIKeyService.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, plaintext string) (*model.AuthContext, error)
}

// AuthConfig holds configuration for the API key middleware.
type AuthConfig struct {
	Logger *slog.Logger
	Keys   KeyAuthenticator
}

// APIKeyAuth authenticates requests by API key and injects the auth context.
// Key validity is checked against the store on every request.
func APIKeyAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				logAuthFailure(cfg.Logger, r, "missing_key")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			authCtx, err := cfg.Keys.Authenticate(r.Context(), key)
			if err != nil {
				if errors.Is(err, service.ErrPersistence) {
					cfg.Logger.Error("api key lookup failed",
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(r.Context())),
					)
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
					return
				}
				logAuthFailure(cfg.Logger, r, "invalid_key")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			cfg.Logger.Debug("api key authenticated",
				slog.Int64("key_id", authCtx.KeyID),
				slog.String("key_prefix", authCtx.KeyPrefix),
				slog.Int64("user_id", authCtx.UserID),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			noteCaller(r.Context(), authCtx.UserID, authCtx.KeyPrefix)
			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractAPIKey reads "X-API-Key: <key>" or "Authorization: Bearer ak_...".
func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	if token := bearerToken(r); strings.HasPrefix(token, auth.APIKeyPrefix) {
		return token
	}
	return ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}
