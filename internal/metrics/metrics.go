// Package metrics registers the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksProcessed counts executed tasks by type and outcome (ok, error, panic).
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efolder_tasks_processed_total",
			Help: "Tasks executed by the dispatcher, by type and outcome.",
		},
		[]string{"task", "outcome"},
	)

	// TaskDuration observes how long each task type runs.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "efolder_task_duration_seconds",
			Help:    "Task execution time in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// QueueDepth is the number of tasks waiting for an in-process worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "efolder_queue_depth",
		Help: "Tasks buffered in the in-process pool.",
	})

	// ExternalCalls counts records system calls by operation and outcome.
	ExternalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efolder_records_calls_total",
			Help: "Calls to the external records system.",
		},
		[]string{"operation", "outcome"},
	)

	// ExternalCallDuration observes records system call latency.
	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "efolder_records_call_duration_seconds",
			Help:    "Records system call latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	// DownloadsStarted counts accepted download requests.
	DownloadsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "efolder_downloads_started_total",
		Help: "Download requests accepted.",
	})

	// ManifestsResolved counts manifest fetches by final state.
	ManifestsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efolder_manifests_resolved_total",
			Help: "Manifest fetches by resulting download state.",
		},
		[]string{"state"},
	)

	// DocumentsResolved counts document fetches by outcome (fetched, errored).
	DocumentsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efolder_documents_resolved_total",
			Help: "Document fetches by outcome.",
		},
		[]string{"outcome"},
	)

	// HTTPRequests counts HTTP requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efolder_http_requests_total",
			Help: "HTTP requests served.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes HTTP request latency by route.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "efolder_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
