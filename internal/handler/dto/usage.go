package dto

import (
	"sort"
	"time"

	"github.com/atlasgate/atlasgate/internal/model"
)

// LogUsageRequest is the body of POST /api/usage/log.
// Only admins may log against another user.
type LogUsageRequest struct {
	UserID   int64  `json:"userId,omitempty"`
	Endpoint string `json:"endpoint"`
}

// LogUsageResponse acknowledges a recorded call.
type LogUsageResponse struct {
	Message string    `json:"message"`
	ID      string    `json:"id"`
	At      time.Time `json:"timestamp"`
}

// QuotaResponse is the caller's windowed usage against their limit.
type QuotaResponse struct {
	UsageCount int64  `json:"usageCount"`
	Limit      int64  `json:"limit"`
	Remaining  int64  `json:"remaining"`
	Window     string `json:"window"`
}

// ToQuotaResponse converts a report for the given window.
func ToQuotaResponse(report model.QuotaReport, window time.Duration) QuotaResponse {
	return QuotaResponse{
		UsageCount: report.UsageCount,
		Limit:      report.Limit,
		Remaining:  report.Remaining(),
		Window:     window.String(),
	}
}

// ToEndpointUsageList flattens per-endpoint usage, ordered by endpoint.
func ToEndpointUsageList(usage map[string]model.EndpointUsage) []model.EndpointUsage {
	out := make([]model.EndpointUsage, 0, len(usage))
	for _, u := range usage {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// CountryLookupResponse is returned by GET /api/country.
type CountryLookupResponse struct {
	Country model.CountryResponse `json:"country"`
	Usage   model.QuotaReport     `json:"usage"`
}
