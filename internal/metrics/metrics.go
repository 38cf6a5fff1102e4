// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Status labels shared by recorders.
const (
	StatusSuccess     = "success"
	StatusFailure     = "failure"
	StatusNotFound    = "not_found"
	StatusUnavailable = "unavailable"
)

// Lookup tiers.
const (
	TierRedis = "redis"
	TierStore = "store"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Credential metrics
	IncLogin(status string) // status: "success" or "failure"
	IncAPIKeyIssued()
	IncAPIKeyRevoked()

	// Usage accounting metrics
	IncUsageRecorded(status string) // status: "success" or "failure"
	IncQuotaRejected()
	IncRateLimited(scope string) // scope: "apikey" or "ip"

	// Lookup metrics
	IncLookupCacheHit(tier string) // tier: "redis" or "store"
	IncLookupCacheMiss()
	IncUpstreamFetch(status string) // status: "success", "not_found", "unavailable"
	ObserveUpstreamDuration(duration time.Duration)
	ObserveLookupDuration(duration time.Duration)

	// HTTP metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}
