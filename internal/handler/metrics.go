package handler

import "net/http"

// MetricsHandler exposes recorded metrics through an exporter such as
// metrics.PrometheusRecorder.Handler.
type MetricsHandler struct {
	exporter http.Handler
}

// NewMetricsHandler creates a new MetricsHandler. A nil exporter means
// metrics are disabled.
func NewMetricsHandler(exporter http.Handler) *MetricsHandler {
	return &MetricsHandler{exporter: exporter}
}

// Metrics serves GET /metrics.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "METRICS_DISABLED", "Metrics are disabled")
		return
	}
	h.exporter.ServeHTTP(w, r)
}
