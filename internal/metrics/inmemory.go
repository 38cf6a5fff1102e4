package metrics

import (
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Logins           map[string]uint64
	APIKeysIssued    uint64
	APIKeysRevoked   uint64
	UsageRecorded    map[string]uint64
	QuotaRejected    uint64
	RateLimited      map[string]uint64
	LookupHits       map[string]uint64
	LookupMisses     uint64
	UpstreamFetches  map[string]uint64
	UpstreamCount    uint64
	LookupCount      uint64
	HTTPRequests     uint64
	HTTPServerErrors uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu sync.Mutex
	s  Snapshot
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{s: Snapshot{
		Logins:          map[string]uint64{},
		UsageRecorded:   map[string]uint64{},
		RateLimited:     map[string]uint64{},
		LookupHits:      map[string]uint64{},
		UpstreamFetches: map[string]uint64{},
	}}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.s
	out.Logins = copyCounts(m.s.Logins)
	out.UsageRecorded = copyCounts(m.s.UsageRecorded)
	out.RateLimited = copyCounts(m.s.RateLimited)
	out.LookupHits = copyCounts(m.s.LookupHits)
	out.UpstreamFetches = copyCounts(m.s.UpstreamFetches)
	return out
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// IncLogin increments the login counter for a status.
func (m *InMemoryRecorder) IncLogin(status string) {
	m.mu.Lock()
	m.s.Logins[status]++
	m.mu.Unlock()
}

// IncAPIKeyIssued increments the issued key counter.
func (m *InMemoryRecorder) IncAPIKeyIssued() {
	m.mu.Lock()
	m.s.APIKeysIssued++
	m.mu.Unlock()
}

// IncAPIKeyRevoked increments the revoked key counter.
func (m *InMemoryRecorder) IncAPIKeyRevoked() {
	m.mu.Lock()
	m.s.APIKeysRevoked++
	m.mu.Unlock()
}

// IncUsageRecorded increments the usage record counter for a status.
func (m *InMemoryRecorder) IncUsageRecorded(status string) {
	m.mu.Lock()
	m.s.UsageRecorded[status]++
	m.mu.Unlock()
}

// IncQuotaRejected increments the quota rejection counter.
func (m *InMemoryRecorder) IncQuotaRejected() {
	m.mu.Lock()
	m.s.QuotaRejected++
	m.mu.Unlock()
}

// IncRateLimited increments the burst limiter counter for a scope.
func (m *InMemoryRecorder) IncRateLimited(scope string) {
	m.mu.Lock()
	m.s.RateLimited[scope]++
	m.mu.Unlock()
}

// IncLookupCacheHit increments the lookup hit counter for a tier.
func (m *InMemoryRecorder) IncLookupCacheHit(tier string) {
	m.mu.Lock()
	m.s.LookupHits[tier]++
	m.mu.Unlock()
}

// IncLookupCacheMiss increments the lookup miss counter.
func (m *InMemoryRecorder) IncLookupCacheMiss() {
	m.mu.Lock()
	m.s.LookupMisses++
	m.mu.Unlock()
}

// IncUpstreamFetch increments the upstream fetch counter for a status.
func (m *InMemoryRecorder) IncUpstreamFetch(status string) {
	m.mu.Lock()
	m.s.UpstreamFetches[status]++
	m.mu.Unlock()
}

// ObserveUpstreamDuration counts an upstream timing sample.
func (m *InMemoryRecorder) ObserveUpstreamDuration(duration time.Duration) {
	m.mu.Lock()
	m.s.UpstreamCount++
	m.mu.Unlock()
}

// ObserveLookupDuration counts a lookup timing sample.
func (m *InMemoryRecorder) ObserveLookupDuration(duration time.Duration) {
	m.mu.Lock()
	m.s.LookupCount++
	m.mu.Unlock()
}

// ObserveHTTPRequest counts a request and any 5xx response.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	m.mu.Lock()
	m.s.HTTPRequests++
	if status >= 500 {
		m.s.HTTPServerErrors++
	}
	m.mu.Unlock()
}
