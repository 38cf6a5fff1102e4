package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/handler/dto"
	"github.com/atlasgate/atlasgate/internal/middleware"
	"github.com/atlasgate/atlasgate/internal/model"
)

// UsageRecorder appends and aggregates usage records.
// Satisfied by *service.UsageTracker.
type UsageRecorder interface {
	Record(ctx context.Context, userID int64, keyPrefix, endpoint string) (*model.UsageRecord, error)
	UsageByEndpoint(ctx context.Context, userID int64) (map[string]model.EndpointUsage, error)
	Window() time.Duration
}

// QuotaReporter reports windowed usage against plan limits, falling back to
// zero usage when the count is unavailable.
// Satisfied by *service.QuotaService.
type QuotaReporter interface {
	Report(ctx context.Context, userID int64, plan string) model.QuotaReport
}

// UsageHandler handles usage logging and reporting.
type UsageHandler struct {
	usage  UsageRecorder
	quota  QuotaReporter
	logger *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(usage UsageRecorder, quota QuotaReporter, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		usage:  usage,
		quota:  quota,
		logger: logger,
	}
}

// Quota handles GET /api/usage for API key callers. The report is
// informational, so a failed count answers zero usage rather than an error.
func (h *UsageHandler) Quota(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
		return
	}

	report := h.quota.Report(r.Context(), authCtx.UserID, authCtx.Plan)
	writeJSON(w, http.StatusOK, dto.ToQuotaResponse(report, h.usage.Window()))
}

// Log handles POST /api/usage/log.
func (h *UsageHandler) Log(w http.ResponseWriter, r *http.Request) {
	caller, ok := sessionActor(w, r)
	if !ok {
		return
	}

	var req dto.LogUsageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if err := middleware.ValidateEndpoint(req.Endpoint); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ENDPOINT", err.Error())
		return
	}

	target, ok := caller.resolveTarget(w, req.UserID)
	if !ok {
		return
	}

	rec, err := h.usage.Record(r.Context(), target, "", strings.TrimSpace(req.Endpoint))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.LogUsageResponse{
		Message: "API usage logged successfully",
		ID:      rec.ID,
		At:      rec.CreatedAt,
	})
}

// ByEndpoint handles GET /api/usage/{userId}. Users may read their own
// usage; admins may read anyone's.
func (h *UsageHandler) ByEndpoint(w http.ResponseWriter, r *http.Request) {
	caller, ok := sessionActor(w, r)
	if !ok {
		return
	}

	userID, ok := int64Param(r, "userId")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_USER_ID", "User ID must be a positive integer")
		return
	}
	if userID != caller.id && !caller.admin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin role required to read another user's usage")
		return
	}

	usage, err := h.usage.UsageByEndpoint(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToEndpointUsageList(usage))
}
