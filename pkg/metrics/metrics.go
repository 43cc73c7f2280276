package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// NotificationsCreated counts persisted notifications by type and producer source (api|enhanced|ingest).
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notifications_created_total",
			Help: "Total number of notifications persisted",
		},
		[]string{"type", "source"},
	)

	// NotificationEmails counts email side-channel attempts by result (sent|failed|skipped).
	NotificationEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notification_emails_total",
			Help: "Total number of notification email dispatch attempts",
		},
		[]string{"result"},
	)

	// NotificationsSuppressed counts deliveries gated by user preferences, by reason.
	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notifications_suppressed_total",
			Help: "Total number of notification deliveries suppressed by preferences",
		},
		[]string{"reason"},
	)

	// NotificationsCleaned counts rows removed by retention sweeps.
	NotificationsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_notifications_cleaned_total",
			Help: "Total number of read notifications removed by retention cleanup",
		},
	)

	// RealtimeConnections tracks connected websocket clients.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_realtime_connections",
			Help: "Number of connected realtime websocket clients",
		},
	)

	// IngestMessages counts producer messages consumed from the broker by result (created|skipped|failed).
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_ingest_messages_total",
			Help: "Total number of notification ingest messages processed",
		},
		[]string{"result"},
	)
)
