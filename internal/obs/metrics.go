package obs

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alex-user-go/skisearch/internal/version"
)

// Finalization reasons for a streaming search.
const (
	ReasonComplete = "complete"
	ReasonTimeout  = "timeout"
	ReasonError    = "error"
)

// Metrics holds the application's Prometheus collectors.
// The recording methods are no-ops on a nil *Metrics.
type Metrics struct {
	Requests        *prometheus.CounterVec
	CacheHits       prometheus.Counter
	ProviderErrors  *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	OffersEmitted   prometheus.Counter
	OffersDuplicate prometheus.Counter
	Finalized       *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of search requests",
		}, []string{"endpoint"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of batch cache hits",
		}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_errors_total",
			Help: "Failed sub-runs per provider",
		}, []string{"provider"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provider_latency_seconds",
			Help:    "Duration of a single sub-run per provider",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		OffersEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offers_emitted_total",
			Help: "Offers that passed de-duplication",
		}),
		OffersDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offers_duplicate_total",
			Help: "Offers dropped as duplicates",
		}),
		Finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "search_finalized_total",
			Help: "Streaming searches by finalization reason",
		}, []string{"reason"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		registry: reg,
	}

	reg.MustRegister(
		m.Requests,
		m.CacheHits,
		m.ProviderErrors,
		m.ProviderLatency,
		m.OffersEmitted,
		m.OffersDuplicate,
		m.Finalized,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	)

	return m
}

// IncRequests increments the request counter for endpoint.
func (m *Metrics) IncRequests(endpoint string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(endpoint).Inc()
}

// IncCacheHits increments the cache hits counter.
func (m *Metrics) IncCacheHits() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// IncProviderErrors increments the failed sub-run counter for provider.
func (m *Metrics) IncProviderErrors(provider string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider).Inc()
}

// ObserveProviderLatency records how long one sub-run took.
func (m *Metrics) ObserveProviderLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.ProviderLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) IncOffersEmitted() {
	if m == nil {
		return
	}
	m.OffersEmitted.Inc()
}

func (m *Metrics) IncOffersDuplicate() {
	if m == nil {
		return
	}
	m.OffersDuplicate.Inc()
}

// IncFinalized counts a finished streaming search.
func (m *Metrics) IncFinalized(reason string) {
	if m == nil {
		return
	}
	m.Finalized.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}

// MetricsHandler returns a handler for /metrics requests in Prometheus format.
func (m *Metrics) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HealthHandler returns a handler for /healthz requests.
func HealthHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": version.String(),
		}); err != nil {
			logger.Error("failed to write health response", "error", err)
		}
	}
}
