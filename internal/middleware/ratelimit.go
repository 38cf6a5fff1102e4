package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/cache"
	"github.com/atlasgate/atlasgate/internal/metrics"
	"github.com/atlasgate/atlasgate/internal/model"
)

// Rate limit scopes used in logs and metrics.
const (
	ScopeAPIKey = "apikey"
	ScopeIP     = "ip"
)

// Limiter is a short-term token bucket store. Satisfied by *cache.Cache.
type Limiter interface {
	CheckAPIRateLimit(ctx context.Context, keyPrefix string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter Limiter
	Metrics metrics.Recorder
	// IPRatePerMinute and IPBurst bound unauthenticated endpoints per client.
	IPRatePerMinute int
	IPBurst         int
}

// RateLimitAPI applies the per-plan burst limit per API key. It is separate
// from the windowed quota. Redis failures let the request through.
// Must be applied after APIKeyAuth.
func RateLimitAPI(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil || cfg.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			plan := model.GetPlanConfig(authCtx.Plan)
			result, err := cfg.Limiter.CheckAPIRateLimit(r.Context(), authCtx.KeyPrefix, plan.RequestsPerMinute, plan.Burst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("key_prefix", authCtx.KeyPrefix),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, plan.RequestsPerMinute, result)
			if !result.Allowed {
				cfg.Metrics.IncRateLimited(ScopeAPIKey)
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", ScopeAPIKey),
					slog.String("key_prefix", authCtx.KeyPrefix),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitIP limits requests per client IP. Used on the login and
// registration endpoints. Redis failures let the request through.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Limiter == nil || cfg.IPRatePerMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			result, err := cfg.Limiter.CheckIPRateLimit(r.Context(), ip, cfg.IPRatePerMinute, cfg.IPBurst)
			if err != nil {
				cfg.Logger.Error("IP rate limit check failed", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				cfg.Metrics.IncRateLimited(ScopeIP)
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", ScopeIP),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result *cache.RateLimitResult) {
	if limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
		fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", secs))
}

// clientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then
// the connection address without its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
