package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/atlasgate/atlasgate/internal/handler/dto"
	"github.com/atlasgate/atlasgate/internal/middleware"
	"github.com/atlasgate/atlasgate/internal/model"
)

// UserAdmin lists and updates user accounts.
// Satisfied by *service.AdminService.
type UserAdmin interface {
	ListUsersWithUsage(ctx context.Context) ([]*model.UserWithUsage, error)
	UpdatePlan(ctx context.Context, userID int64, plan string) (*model.User, error)
}

// AdminHandler provides admin-only user management endpoints.
type AdminHandler struct {
	users  UserAdmin
	logger *slog.Logger
	now    func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(users UserAdmin, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// ListUsersWithUsage handles GET /users/with-usage.
func (h *AdminHandler) ListUsersWithUsage(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsersWithUsage(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUserUsageList(users))
}

// UpdatePlan handles PATCH /users/update-plan/{userId}.
func (h *AdminHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := int64Param(r, "userId")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_USER_ID", "User ID must be a positive integer")
		return
	}

	var req dto.UpdatePlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Plan) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PLAN", "Plan is required")
		return
	}

	user, err := h.users.UpdatePlan(r.Context(), userID, req.Plan)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("plan updated",
		slog.Int64("user_id", user.ID),
		slog.String("plan", user.Plan),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)

	writeJSON(w, http.StatusOK, dto.UpdatePlanResponse{
		ID:      user.ID,
		Plan:    user.Plan,
		Updated: h.now().UTC(),
	})
}
