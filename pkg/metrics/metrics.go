package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tasks upserted per sync pass.
	SyncTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_tasks_total",
			Help: "Total number of tasks upserted by sync passes",
		},
		[]string{"source"},
	)

	// Stale records purged per sync pass.
	SyncRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_removed_total",
			Help: "Total number of stale tasks purged by sync passes",
		},
		[]string{"source"},
	)

	SyncFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_fetch_failures_total",
			Help: "Total number of failed adapter fetches",
		},
		[]string{"source"},
	)

	// Empty success responses from sources that normally hold records.
	SyncPurgeSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_purge_skipped_total",
			Help: "Total number of sync passes where the purge was suppressed on a suspicious empty response",
		},
		[]string{"source"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_pass_duration_seconds",
			Help:    "Sync pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"source"},
	)

	WorkflowTasksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_tasks_created_total",
			Help: "Total number of milestone task projections created by the workflow engine",
		},
	)

	WorkflowTicketsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_tickets_created_total",
			Help: "Total number of tracking tickets created by the workflow engine",
		},
	)

	WorkflowErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_errors_total",
			Help: "Total number of per-milestone workflow errors",
		},
		[]string{"stage"}, // stage: project, tickets
	)

	OrchestratorCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_call_latency_ms",
			Help:    "Orchestrator call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"status"},
	)

	ConnectorCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connector_call_latency_ms",
			Help:    "Connector fetch latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"source", "status"},
	)
)

// RecordSyncPass records the counters for one completed sync pass.
func RecordSyncPass(source string, synced, removed int, duration time.Duration) {
	SyncTasksTotal.WithLabelValues(source).Add(float64(synced))
	SyncRemovedTotal.WithLabelValues(source).Add(float64(removed))
	SyncDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordOrchestratorCall records the latency of one orchestrator call.
func RecordOrchestratorCall(status string, duration time.Duration) {
	OrchestratorCallLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// RecordConnectorCall records the latency of one connector fetch.
func RecordConnectorCall(source, status string, duration time.Duration) {
	ConnectorCallLatency.WithLabelValues(source, status).Observe(float64(duration.Milliseconds()))
}
