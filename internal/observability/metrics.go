package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipline",
		Name:      "jobs_queued_total",
		Help:      "Total number of processing jobs enqueued",
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clipline",
		Name:      "jobs_processed_total",
		Help:      "Total number of queue jobs processed by outcome",
	}, []string{"outcome"})

	JobsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipline",
		Name:      "jobs_dead_lettered_total",
		Help:      "Total number of jobs routed to the dead-letter queue",
	})

	PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clipline",
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	ContainerStarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipline",
		Name:      "container_starts_total",
		Help:      "Total number of container cold starts",
	})

	ContainerForwardRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipline",
		Name:      "container_forward_retries_total",
		Help:      "Total number of retried container forwards",
	})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clipline",
		Name:      "webhook_deliveries_total",
		Help:      "Total webhook delivery attempts by outcome",
	}, []string{"outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "clipline",
		Name:      "queue_depth",
		Help:      "Number of pending jobs in the queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clipline",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
