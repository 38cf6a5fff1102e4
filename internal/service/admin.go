package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/repository"
)

// AdminService holds operations reserved for admin sessions.
type AdminService struct {
	users  UserStore
	logger *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(users UserStore, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{users: users, logger: logger.With("component", "admin")}
}

// ListUsersWithUsage returns every user with all-time usage totals.
func (s *AdminService) ListUsersWithUsage(ctx context.Context) ([]*model.UserWithUsage, error) {
	users, err := s.users.ListUsersWithUsage(ctx)
	if err != nil {
		return nil, persistenceError("list users", err)
	}
	if users == nil {
		users = []*model.UserWithUsage{}
	}
	return users, nil
}

// UpdatePlan moves a user to another known plan and returns the updated user.
func (s *AdminService) UpdatePlan(ctx context.Context, userID int64, plan string) (*model.User, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if !model.IsKnownPlan(plan) {
		return nil, ErrInvalidPlan
	}

	if err := s.users.UpdateUserPlan(ctx, userID, plan); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, persistenceError("update plan", err)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, persistenceError("load user", err)
	}

	s.logger.Info("user plan updated",
		slog.Int64("user_id", userID),
		slog.String("plan", plan),
	)
	return user, nil
}
