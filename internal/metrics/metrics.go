package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importexport_http_requests_total",
			Help: "Total number of HTTP requests served (by route, method and status).",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "importexport_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms → ~8s
		},
		[]string{"route", "method"},
	)

	// Outcome of every transfer attempt: ok, invalid, not_found, insufficient, duplicate, error.
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importexport_transfers_total",
			Help: "Number of transfer attempts by result.",
		},
		[]string{"result"},
	)

	TransferredUnits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "importexport_transferred_units_total",
			Help: "Units of stock moved by committed transfers.",
		},
	)

	EventPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importexport_event_publish_errors_total",
			Help: "Number of event publish failures",
		},
		[]string{"type"},
	)
)

// ObserveDuration records the time elapsed since start on the given histogram.
func ObserveDuration(h *prometheus.HistogramVec, start time.Time, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

func IncTransfer(result string) {
	TransfersTotal.WithLabelValues(result).Inc()
}

func IncEventPublishError(eventType string) {
	EventPublishErrors.WithLabelValues(eventType).Inc()
}
