package model

import "time"

// UsageRecord is one logged API call. Rows are append-only.
type UsageRecord struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	KeyPrefix string    `json:"key_prefix"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"timestamp"`
}

// EndpointUsage aggregates all-time calls to one endpoint.
type EndpointUsage struct {
	Endpoint string    `json:"endpoint"`
	Count    int64     `json:"count"`
	LastUsed time.Time `json:"last_used"`
}

// QuotaReport pairs a user's windowed usage with their plan limit.
type QuotaReport struct {
	UsageCount int64 `json:"usageCount"`
	Limit      int64 `json:"limit"`
}

// Exceeded reports whether no calls remain in the window.
func (q QuotaReport) Exceeded() bool {
	return q.UsageCount >= q.Limit
}

// Remaining returns the calls left in the window, never negative.
func (q QuotaReport) Remaining() int64 {
	if q.UsageCount >= q.Limit {
		return 0
	}
	return q.Limit - q.UsageCount
}
