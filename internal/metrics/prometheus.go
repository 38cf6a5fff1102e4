package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "atlasgate"

// PrometheusRecorder exports metrics through a private registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	logins           *prometheus.CounterVec
	apiKeysIssued    prometheus.Counter
	apiKeysRevoked   prometheus.Counter
	usageRecorded    *prometheus.CounterVec
	quotaRejected    prometheus.Counter
	rateLimited      *prometheus.CounterVec
	lookupHits       *prometheus.CounterVec
	lookupMisses     prometheus.Counter
	upstreamFetches  *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
	lookupDuration   prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewPrometheus registers all collectors, plus Go and process collectors,
// on a fresh registry.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"status"}),
		apiKeysIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_keys_issued_total",
			Help:      "API keys issued.",
		}),
		apiKeysRevoked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_keys_revoked_total",
			Help:      "API keys revoked.",
		}),
		usageRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_records_total",
			Help:      "Usage record writes by outcome.",
		}, []string{"status"}),
		quotaRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejections_total",
			Help:      "Requests rejected because the usage window was exhausted.",
		}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the burst limiter.",
		}, []string{"scope"}),
		lookupHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_hits_total",
			Help:      "Country lookups served locally, by tier.",
		}, []string{"tier"}),
		lookupMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_misses_total",
			Help:      "Country lookups that fell through to the upstream.",
		}),
		upstreamFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fetches_total",
			Help:      "Upstream fetches by outcome.",
		}, []string{"status"}),
		upstreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_fetch_duration_seconds",
			Help:      "Upstream fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		lookupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "End-to-end country resolution latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (p *PrometheusRecorder) Gatherer() prometheus.Gatherer {
	return p.registry
}

// IncLogin increments the login counter for a status.
func (p *PrometheusRecorder) IncLogin(status string) {
	p.logins.WithLabelValues(status).Inc()
}

// IncAPIKeyIssued increments the issued key counter.
func (p *PrometheusRecorder) IncAPIKeyIssued() {
	p.apiKeysIssued.Inc()
}

// IncAPIKeyRevoked increments the revoked key counter.
func (p *PrometheusRecorder) IncAPIKeyRevoked() {
	p.apiKeysRevoked.Inc()
}

// IncUsageRecorded increments the usage record counter for a status.
func (p *PrometheusRecorder) IncUsageRecorded(status string) {
	p.usageRecorded.WithLabelValues(status).Inc()
}

// IncQuotaRejected increments the quota rejection counter.
func (p *PrometheusRecorder) IncQuotaRejected() {
	p.quotaRejected.Inc()
}

// IncRateLimited increments the burst limiter counter for a scope.
func (p *PrometheusRecorder) IncRateLimited(scope string) {
	p.rateLimited.WithLabelValues(scope).Inc()
}

// IncLookupCacheHit increments the lookup hit counter for a tier.
func (p *PrometheusRecorder) IncLookupCacheHit(tier string) {
	p.lookupHits.WithLabelValues(tier).Inc()
}

// IncLookupCacheMiss increments the lookup miss counter.
func (p *PrometheusRecorder) IncLookupCacheMiss() {
	p.lookupMisses.Inc()
}

// IncUpstreamFetch increments the upstream fetch counter for a status.
func (p *PrometheusRecorder) IncUpstreamFetch(status string) {
	p.upstreamFetches.WithLabelValues(status).Inc()
}

// ObserveUpstreamDuration records upstream latency.
func (p *PrometheusRecorder) ObserveUpstreamDuration(duration time.Duration) {
	p.upstreamDuration.Observe(duration.Seconds())
}

// ObserveLookupDuration records resolution latency.
func (p *PrometheusRecorder) ObserveLookupDuration(duration time.Duration) {
	p.lookupDuration.Observe(duration.Seconds())
}

// ObserveHTTPRequest records one served request.
func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
