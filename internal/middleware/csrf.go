package middleware

import (
	"log/slog"
	"net/http"

	"github.com/atlasgate/atlasgate/internal/auth"
)

// CSRF enforces double-submit validation on state-changing requests: the
// X-CSRF-Token header must equal the csrf-token cookie. Safe methods pass.
func CSRF(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			var reference string
			if c, err := r.Cookie(auth.CSRFCookieName); err == nil {
				reference = c.Value
			}

			if !auth.ValidateCSRF(r.Header.Get(auth.CSRFHeaderName), reference) {
				logger.Warn("csrf validation failed",
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("user_id", auth.UserIDFromContext(r.Context())),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusForbidden, "CSRF_MISMATCH", "CSRF token missing or invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
