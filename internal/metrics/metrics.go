// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsCreated counts conversations created by the resolver.
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meetup_conversations_created_total",
			Help: "Conversations created for a new user pair",
		},
	)

	// VerificationRequestsCreated counts pending requests written to the ledger.
	VerificationRequestsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meetup_verification_requests_created_total",
			Help: "Meetup verification requests created",
		},
	)

	// VerificationsResolved counts committed resolutions by decision.
	VerificationsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetup_verifications_resolved_total",
			Help: "Meetup verification requests resolved",
		},
		[]string{"decision"},
	)

	// Refusals counts business-rule refusals by error code.
	Refusals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetup_refusals_total",
			Help: "Operations refused by a ledger or approval rule",
		},
		[]string{"code"},
	)

	// TxAttempts tracks how many attempts a store transaction needed.
	TxAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "store_tx_attempts",
			Help:    "Attempts per store transaction",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13, 21},
		},
	)

	// TxAborted counts transactions that exhausted their retries.
	TxAborted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_tx_aborted_total",
			Help: "Store transactions aborted after exhausting retries",
		},
	)

	// LiveViewsActive tracks open live views (pending requests and messages).
	LiveViewsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "live_views_active",
			Help: "Number of active live views",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTx records the outcome of one store transaction.
func RecordTx(attempts int, aborted bool) {
	TxAttempts.Observe(float64(attempts))
	if aborted {
		TxAborted.Inc()
	}
}
