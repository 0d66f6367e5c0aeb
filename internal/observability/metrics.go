package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "transitions_total", Help: "Lifecycle transitions applied"},
		[]string{"entity", "to"},
	)
	TransitionConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "transition_conflicts_total", Help: "Transitions that lost a status guard"},
		[]string{"entity"},
	)

	NotificationsFanoutTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "notifications_fanout_total", Help: "Notification rows created by fanout"},
	)
	NotificationsDedupedTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "notifications_deduped_total", Help: "Fanout inserts suppressed by the idempotency guard"},
	)

	LocationSamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "location_samples_total", Help: "Location samples accepted"},
	)
	LocationSampleFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "location_sample_failures_total", Help: "Location samples dropped or failed"},
	)

	SubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "ridepool", Name: "subscriptions_active", Help: "Open change-event subscriptions"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ridepool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
