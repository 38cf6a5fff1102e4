package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncLogin is a no-op.
func (n *NoopRecorder) IncLogin(status string) {}

// IncAPIKeyIssued is a no-op.
func (n *NoopRecorder) IncAPIKeyIssued() {}

// IncAPIKeyRevoked is a no-op.
func (n *NoopRecorder) IncAPIKeyRevoked() {}

// IncUsageRecorded is a no-op.
func (n *NoopRecorder) IncUsageRecorded(status string) {}

// IncQuotaRejected is a no-op.
func (n *NoopRecorder) IncQuotaRejected() {}

// IncRateLimited is a no-op.
func (n *NoopRecorder) IncRateLimited(scope string) {}

// IncLookupCacheHit is a no-op.
func (n *NoopRecorder) IncLookupCacheHit(tier string) {}

// IncLookupCacheMiss is a no-op.
func (n *NoopRecorder) IncLookupCacheMiss() {}

// IncUpstreamFetch is a no-op.
func (n *NoopRecorder) IncUpstreamFetch(status string) {}

// ObserveUpstreamDuration is a no-op.
func (n *NoopRecorder) ObserveUpstreamDuration(duration time.Duration) {}

// ObserveLookupDuration is a no-op.
func (n *NoopRecorder) ObserveLookupDuration(duration time.Duration) {}

// ObserveHTTPRequest is a no-op.
func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {}
