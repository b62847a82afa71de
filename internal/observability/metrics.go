package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agora_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// LiveEventsPublished counts live collection events by type.
	LiveEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_live_events_published_total",
		Help: "Total live collection events published by type",
	}, []string{"event_type"})

	// PostsCreated counts created posts by type.
	PostsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_posts_created_total",
		Help: "Total posts created by type",
	}, []string{"type"})

	// RepliesCreated counts created replies.
	RepliesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agora_replies_created_total",
		Help: "Total replies created",
	})

	// RatingsSubmitted counts rating submissions by outcome (created, updated, rejected).
	RatingsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_ratings_submitted_total",
		Help: "Total rating submissions by outcome",
	}, []string{"outcome"})

	// SweepRuns counts image expiration sweeps by trigger and result.
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_sweep_runs_total",
		Help: "Total image expiration sweeps by trigger and result",
	}, []string{"trigger", "result"})

	// SweepImagesRemoved counts images stripped by the sweep.
	SweepImagesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agora_sweep_images_removed_total",
		Help: "Total images removed from expired posts",
	})

	// SweepStorageFreedKB accumulates the estimated storage reclaimed.
	SweepStorageFreedKB = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agora_sweep_storage_freed_kb_total",
		Help: "Estimated kilobytes reclaimed by the image expiration sweep",
	})

	// SweepFailures counts per-post update failures during sweeps.
	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agora_sweep_failures_total",
		Help: "Total per-post failures recorded by the image expiration sweep",
	})

	// SweepDuration records sweep wall time.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agora_sweep_duration_seconds",
		Help:    "Image expiration sweep duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// ExpiredPostsDeleted counts posts removed by the admin bulk delete.
	ExpiredPostsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agora_expired_posts_deleted_total",
		Help: "Total expired posts deleted by admins",
	})
)
