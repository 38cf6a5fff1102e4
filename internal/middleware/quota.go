package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/metrics"
	"github.com/atlasgate/atlasgate/internal/model"
)

// QuotaEvaluator reports windowed usage against a plan limit.
// Satisfied by *service.QuotaService.
type QuotaEvaluator interface {
	EvaluatePlan(ctx context.Context, userID int64, plan string) (model.QuotaReport, error)
}

// QuotaConfig holds configuration for quota enforcement.
type QuotaConfig struct {
	Logger  *slog.Logger
	Quota   QuotaEvaluator
	Metrics metrics.Recorder
}

// Quota rejects API key requests with 429 once the caller's windowed usage
// has reached the plan limit. Must be applied after APIKeyAuth.
//
// The count is read before the handler records the current call, so two
// concurrent requests can both pass at limit-1. A failed count rejects the
// request with 500.
func Quota(cfg QuotaConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			report, err := cfg.Quota.EvaluatePlan(r.Context(), authCtx.UserID, authCtx.Plan)
			if err != nil {
				cfg.Logger.Error("quota check failed",
					slog.Int64("user_id", authCtx.UserID),
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unable to check usage quota")
				return
			}

			w.Header().Set("X-Quota-Limit", strconv.FormatInt(report.Limit, 10))
			w.Header().Set("X-Quota-Used", strconv.FormatInt(report.UsageCount, 10))

			if report.Exceeded() {
				cfg.Metrics.IncQuotaRejected()
				cfg.Logger.Warn("quota exceeded",
					slog.Int64("user_id", authCtx.UserID),
					slog.String("plan", authCtx.Plan),
					slog.Int64("usage", report.UsageCount),
					slog.Int64("limit", report.Limit),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED", "Usage quota exceeded for the current window")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
