package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/repository"
)

// LimitFor returns the windowed call allowance of a plan.
// Plans without a table row get the fallback allowance.
func LimitFor(plan string) int64 {
	return model.GetPlanConfig(plan).WindowLimit
}

// QuotaService combines windowed usage with plan limits. It reports;
// enforcement is up to the caller.
type QuotaService struct {
	users  UserStore
	usage  *UsageTracker
	logger *slog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(users UserStore, usage *UsageTracker, logger *slog.Logger) *QuotaService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaService{
		users:  users,
		usage:  usage,
		logger: logger.With("component", "quota"),
	}
}

// Evaluate looks up the user's plan and reports usage against its limit.
func (s *QuotaService) Evaluate(ctx context.Context, userID int64) (model.QuotaReport, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.QuotaReport{}, ErrUnknownUser
		}
		return model.QuotaReport{}, persistenceError("load user", err)
	}
	return s.EvaluatePlan(ctx, user.ID, user.Plan)
}

// EvaluatePlan reports usage for a user whose plan is already known.
func (s *QuotaService) EvaluatePlan(ctx context.Context, userID int64, plan string) (model.QuotaReport, error) {
	count, err := s.usage.Count(ctx, userID)
	if err != nil {
		return model.QuotaReport{}, err
	}
	return model.QuotaReport{UsageCount: count, Limit: LimitFor(plan)}, nil
}

// Report is EvaluatePlan for informational use. A failed count is logged
// and reported as zero usage.
func (s *QuotaService) Report(ctx context.Context, userID int64, plan string) model.QuotaReport {
	report, err := s.EvaluatePlan(ctx, userID, plan)
	if err != nil {
		s.logger.Warn("usage count unavailable",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.QuotaReport{UsageCount: 0, Limit: LimitFor(plan)}
	}
	return report
}
