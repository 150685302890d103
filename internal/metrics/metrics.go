// Package metrics exposes Prometheus instruments for compare and sync activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ComparesTotal counts compare calls by outcome.
	ComparesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plsync_compares_total",
			Help: "Total number of playlist comparisons",
		},
		[]string{"direction", "status"},
	)

	// DiffTracks tracks the size of each diff bucket.
	DiffTracks = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plsync_diff_tracks",
			Help:    "Tracks per diff bucket",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"bucket"},
	)

	// RunsTotal counts sync runs by final state.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plsync_sync_runs_total",
			Help: "Total number of sync runs by final state",
		},
		[]string{"direction", "state"},
	)

	// RunDuration tracks sync run wall time.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plsync_sync_run_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"direction"},
	)

	// OperationsTotal counts operations by kind, status and reason.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plsync_operations_total",
			Help: "Total number of sync operations",
		},
		[]string{"platform", "kind", "status", "reason"},
	)

	// OperationAttempts tracks attempts per executed operation.
	OperationAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plsync_operation_attempts",
			Help:    "Write attempts per operation",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"platform"},
	)

	// ResolvesTotal counts catalog resolutions by outcome.
	ResolvesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plsync_catalog_resolves_total",
			Help: "Total number of catalog resolutions",
		},
		[]string{"platform", "status"},
	)

	// PermitWait tracks time spent waiting for a rate limiter permit.
	PermitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plsync_permit_wait_seconds",
			Help:    "Time spent waiting for a rate limit permit",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"platform"},
	)
)

// RecordCompare records a compare call and, when it succeeded, the diff bucket sizes.
func RecordCompare(direction, status string, matched, missingOnTarget, missingOnSource, ambiguous int) {
	ComparesTotal.WithLabelValues(direction, status).Inc()
	if status != "ok" {
		return
	}
	DiffTracks.WithLabelValues("matched").Observe(float64(matched))
	DiffTracks.WithLabelValues("missing_on_target").Observe(float64(missingOnTarget))
	DiffTracks.WithLabelValues("missing_on_source").Observe(float64(missingOnSource))
	DiffTracks.WithLabelValues("ambiguous").Observe(float64(ambiguous))
}

// RecordRun records a finished sync run.
func RecordRun(direction, state string, duration time.Duration) {
	RunsTotal.WithLabelValues(direction, state).Inc()
	RunDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordOperation records the final status of one operation.
func RecordOperation(platform, kind, status, reason string, attempts int) {
	OperationsTotal.WithLabelValues(platform, kind, status, reason).Inc()
	if attempts > 0 {
		OperationAttempts.WithLabelValues(platform).Observe(float64(attempts))
	}
}

// RecordResolve records a catalog resolution outcome ("found", "not_found" or "error").
func RecordResolve(platform, status string) {
	ResolvesTotal.WithLabelValues(platform, status).Inc()
}

// RecordPermitWait records limiter queueing time.
func RecordPermitWait(platform string, wait time.Duration) {
	PermitWait.WithLabelValues(platform).Observe(wait.Seconds())
}
