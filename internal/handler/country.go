package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/handler/dto"
	"github.com/atlasgate/atlasgate/internal/middleware"
	"github.com/atlasgate/atlasgate/internal/model"
)

// CountryEndpoint is the endpoint label recorded for country lookups.
const CountryEndpoint = "/api/country"

// CountryResolver resolves a country by name through the lookup cache.
// Satisfied by *service.CountryService.
type CountryResolver interface {
	Resolve(ctx context.Context, name string) (*model.Country, error)
}

// CountryHandler serves country lookups to API key callers.
type CountryHandler struct {
	countries CountryResolver
	usage     UsageRecorder
	quota     QuotaReporter
	logger    *slog.Logger
}

// NewCountryHandler creates a new CountryHandler.
func NewCountryHandler(countries CountryResolver, usage UsageRecorder, quota QuotaReporter, logger *slog.Logger) *CountryHandler {
	return &CountryHandler{
		countries: countries,
		usage:     usage,
		quota:     quota,
		logger:    logger,
	}
}

// Get handles GET /api/country?name=.
//
// A well-formed request is recorded before the lookup runs, so a call
// counts against the quota even when the country is not found. A failed
// record is logged and the lookup still proceeds.
func (h *CountryHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.AuthFromContext(ctx)
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if err := middleware.ValidateCountryName(name); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_COUNTRY_NAME", err.Error())
		return
	}

	if _, err := h.usage.Record(ctx, authCtx.UserID, authCtx.KeyPrefix, CountryEndpoint); err != nil {
		h.logger.Error("failed to record usage",
			slog.Int64("user_id", authCtx.UserID),
			slog.String("key_prefix", authCtx.KeyPrefix),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(ctx)),
		)
	}

	country, err := h.countries.Resolve(ctx, name)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CountryLookupResponse{
		Country: country.ToResponse(),
		Usage:   h.quota.Report(ctx, authCtx.UserID, authCtx.Plan),
	})
}
