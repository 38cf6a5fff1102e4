package dto

import (
	"time"

	"github.com/atlasgate/atlasgate/internal/model"
)

// UserUsageResponse is one row of GET /users/with-usage.
type UserUsageResponse struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
	Plan     string     `json:"plan"`
	APIUsage APIUsage   `json:"apiUsage"`
}

// APIUsage is a user's all-time call count and most recent call.
type APIUsage struct {
	Count    int64      `json:"count"`
	LastUsed *time.Time `json:"lastUsed"`
}

// ToUserUsageList converts users with usage. Never returns nil.
func ToUserUsageList(users []*model.UserWithUsage) []UserUsageResponse {
	out := make([]UserUsageResponse, 0, len(users))
	for _, u := range users {
		out = append(out, UserUsageResponse{
			ID:    u.User.ID,
			Name:  u.User.Username,
			Email: u.User.Email,
			Role:  u.User.Role,
			Plan:  u.User.Plan,
			APIUsage: APIUsage{
				Count:    u.UsageCount,
				LastUsed: u.LastUsed,
			},
		})
	}
	return out
}

// UpdatePlanRequest is the body of PATCH /users/update-plan/{userId}.
type UpdatePlanRequest struct {
	Plan string `json:"plan"`
}

// UpdatePlanResponse confirms a plan change.
type UpdatePlanResponse struct {
	ID      int64     `json:"id"`
	Plan    string    `json:"plan"`
	Updated time.Time `json:"updated"`
}
