// Package metrics holds the Prometheus collectors for memory administration,
// migration and summarization. Collectors register with the default registry
// and are served by the API at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mnemosyne"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Administrative operations
var (
	// AdminOperationsTotal counts administrative operations by name and result.
	AdminOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "operations_total",
			Help:      "Administrative operations by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// RecordsDeletedTotal counts records removed by session deletes.
	RecordsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "records_deleted_total",
			Help:      "Records removed by session deletes.",
		},
	)
)

// Migration
var (
	// MigrationRunsTotal counts migration runs by final status.
	MigrationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "runs_total",
			Help:      "Migration runs by final status.",
		},
		[]string{"status"},
	)

	// MigrationRecordsTotal counts re-embedded records by outcome.
	MigrationRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "records_total",
			Help:      "Records processed by migrations, by outcome.",
		},
		[]string{"outcome"},
	)

	// MigrationDuration observes completed migration durations in seconds.
	MigrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "duration_seconds",
			Help:      "Duration of completed migrations.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	// CollectionDimension reports the embedding width of the configured collection.
	CollectionDimension = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collection_dimension",
			Help:      "Embedding width of a collection as last observed.",
		},
		[]string{"collection"},
	)
)

// Summaries
var (
	// SummariesTotal counts summary pipeline runs by result.
	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "runs_total",
			Help:      "Summary pipeline runs by result.",
		},
		[]string{"result"},
	)

	// SummaryDuration observes summary pipeline latency in seconds.
	SummaryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "duration_seconds",
			Help:      "Summary pipeline latency.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// TrackedSessions reports the number of sessions in the tracker.
	TrackedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "tracked",
			Help:      "Sessions held by the in-memory tracker.",
		},
	)
)

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// RecordAdmin counts one administrative operation.
func RecordAdmin(operation string, err error) {
	AdminOperationsTotal.WithLabelValues(operation, Result(err)).Inc()
}

// RecordMigration records a finished migration run.
func RecordMigration(collection, status string, newDim int, succeeded, failed int64, elapsed time.Duration) {
	MigrationRunsTotal.WithLabelValues(status).Inc()
	MigrationRecordsTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	MigrationRecordsTotal.WithLabelValues("failed").Add(float64(failed))
	MigrationDuration.Observe(elapsed.Seconds())
	if newDim > 0 {
		CollectionDimension.WithLabelValues(collection).Set(float64(newDim))
	}
}

// RecordSummary records one summary pipeline run.
func RecordSummary(err error, elapsed time.Duration) {
	SummariesTotal.WithLabelValues(Result(err)).Inc()
	SummaryDuration.Observe(elapsed.Seconds())
}
