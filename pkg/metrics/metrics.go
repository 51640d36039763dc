package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instagram_webhook_deliveries_total",
		Help: "The total number of webhook HTTP deliveries by outcome",
	}, []string{"outcome"})

	WebhookItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instagram_webhook_items_total",
		Help: "The total number of change and messaging items handled",
	}, []string{"field", "status"})

	WebhookProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "instagram_webhook_processing_duration_seconds",
		Help:    "Time taken to process one webhook delivery",
		Buckets: prometheus.DefBuckets,
	}, []string{"object"})

	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instagram_storage_errors_total",
		Help: "The total number of failed datastore writes",
	}, []string{"table"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instagram_notifications_total",
		Help: "The total number of normalized-event notifications published",
	}, []string{"status"})

	Replies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instagram_replies_total",
		Help: "The total number of operator replies by outcome",
	}, []string{"outcome"})

	ActivityArchived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instagram_activity_archived_total",
		Help: "The total number of notifications archived by the worker",
	}, []string{"kind", "status"})

	WorkerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instagram_worker_retries_total",
		Help: "The total number of notification processing retries",
	}, []string{"kind"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instagram_admin_rate_limit_exceeded_total",
		Help: "The total number of admin API requests rejected by the rate limiter",
	}, []string{"client"})

	QueueSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "instagram_notification_queue_size",
		Help: "Current size of the notification queue",
	}, []string{"queue"})

	ActivityArchivedRecent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "instagram_activity_archived_recent",
		Help: "Notifications archived within the reporting window",
	}, []string{"kind"})
)
