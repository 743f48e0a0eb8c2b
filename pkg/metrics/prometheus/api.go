// Package prometheus implements the metrics interfaces on top of the
// Prometheus client.
package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/assetfiles/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// apiMetrics is the Prometheus implementation of metrics.APIMetrics.
type apiMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	batchItems       *prometheus.CounterVec
	batchSuccess     *prometheus.HistogramVec
	authDecisions    *prometheus.CounterVec
	bytesUploaded    prometheus.Counter
	rateLimited      prometheus.Counter
	eventSubscribers prometheus.Gauge
}

// NewAPIMetrics creates a Prometheus-backed APIMetrics registered in the
// global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not
// called).
func NewAPIMetrics() metrics.APIMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopAPIMetrics()
	}
	return NewAPIMetricsWith(metrics.GetRegistry())
}

// NewAPIMetricsWith registers the API metrics in reg.
func NewAPIMetricsWith(reg prometheus.Registerer) metrics.APIMetrics {
	factory := promauto.With(reg)

	return &apiMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetfiles_api_requests_total",
				Help: "Total number of API requests by operation and status code",
			},
			[]string{"operation", "code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "assetfiles_api_request_duration_milliseconds",
				Help: "Duration of API requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"operation"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "assetfiles_api_requests_in_flight",
				Help: "Current number of API requests being processed",
			},
			[]string{"operation"},
		),
		batchItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetfiles_batch_items_total",
				Help: "Batch items by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		batchSuccess: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assetfiles_batch_success_ratio",
				Help:    "Fraction of items that succeeded per batch",
				Buckets: []float64{0, 0.25, 0.5, 0.75, 0.99, 1},
			},
			[]string{"operation"},
		),
		authDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetfiles_auth_decisions_total",
				Help: "Authorization decisions by outcome",
			},
			[]string{"outcome"},
		),
		bytesUploaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assetfiles_uploaded_bytes_total",
				Help: "Total bytes written by uploads",
			},
		),
		rateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assetfiles_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
		eventSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "assetfiles_event_subscribers",
				Help: "Current number of connected change-event subscribers",
			},
		),
	}
}

func (m *apiMetrics) RecordRequest(operation string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *apiMetrics) RecordRequestStart(operation string) {
	m.requestsInFlight.WithLabelValues(operation).Inc()
}

func (m *apiMetrics) RecordRequestEnd(operation string) {
	m.requestsInFlight.WithLabelValues(operation).Dec()
}

func (m *apiMetrics) RecordBatch(operation string, requested, succeeded int) {
	if requested <= 0 {
		return
	}
	failed := requested - succeeded
	m.batchItems.WithLabelValues(operation, "succeeded").Add(float64(succeeded))
	if failed > 0 {
		m.batchItems.WithLabelValues(operation, "skipped").Add(float64(failed))
	}
	m.batchSuccess.WithLabelValues(operation).Observe(float64(succeeded) / float64(requested))
}

func (m *apiMetrics) RecordAuth(outcome string) {
	m.authDecisions.WithLabelValues(outcome).Inc()
}

func (m *apiMetrics) RecordBytesUploaded(bytes uint64) {
	m.bytesUploaded.Add(float64(bytes))
}

func (m *apiMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

func (m *apiMetrics) SetEventSubscribers(count int) {
	m.eventSubscribers.Set(float64(count))
}
