package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notifications persisted for delivery",
		},
		[]string{"category", "channel"},
	)

	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_suppressed_total",
			Help: "Total number of notifications suppressed before persistence",
		},
		[]string{"reason"},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_escalations_total",
			Help: "Severity escalations applied, by rule",
		},
		[]string{"rule"},
	)

	RateLimitDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_rate_limit_deferred_total",
			Help: "Notifications rescheduled because a recipient hit the per-minute cap",
		},
	)

	DispatchCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "dispatch_cycle_duration_seconds",
			Help: "Duration of a full dispatcher cycle in seconds",
		},
	)

	DispatchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_in_flight",
			Help: "Number of sends currently running in the worker pool",
		},
	)
)
