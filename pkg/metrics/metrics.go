// Package metrics exposes the storage engine's Prometheus instrumentation:
// store lifecycle, sindex catalog/pipeline activity, backfill throughput
// and the artificial-table adapter's fan-out, in the same
// registry-of-package-vars + Timer style the rest of the corpus uses for
// its operational metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store lifecycle

	StoresOpenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcore_store_open_total",
			Help: "Total number of times a store was opened or created",
		},
	)

	SindexCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardcore_sindex_count",
			Help: "Number of secondary indexes by readiness state",
		},
		[]string{"state"}, // "ready", "building", "tombstoned"
	)

	ReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardcore_read_duration_seconds",
			Help:    "Time taken to service a read, from token wait to response",
			Buckets: prometheus.DefBuckets,
		},
	)

	WriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardcore_write_duration_seconds",
			Help:    "Time taken to service a write, from token wait to response",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResetDataPassesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcore_reset_data_passes_total",
			Help: "Total number of bounded reset_data erase passes executed",
		},
	)

	// Sindex catalog / pipeline

	SindexCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcore_sindex_created_total",
			Help: "Total number of secondary indexes created",
		},
	)

	SindexDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcore_sindex_dropped_total",
			Help: "Total number of secondary indexes mark-deleted",
		},
	)

	SindexClearedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcore_sindex_cleared_total",
			Help: "Total number of secondary indexes whose background clear finished",
		},
	)

	SindexClearChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcore_sindex_clear_chunks_total",
			Help: "Total number of CHUNK_SIZE-bounded clear passes executed",
		},
	)

	ModReportsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardcore_mod_reports_applied_total",
			Help: "Total number of modification reports applied to a post-constructed sindex",
		},
		[]string{"sindex"},
	)

	QueuePushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcore_sindex_queue_pushes_total",
			Help: "Total number of mod-report batches fanned out to registered disk-backed queues",
		},
	)

	QueuesRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardcore_sindex_queues_registered",
			Help: "Number of disk-backed queues currently registered for post-construction catch-up",
		},
	)

	// Backfill

	BackfillChunksSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcore_backfill_chunks_sent_total",
			Help: "Total number of backfill chunks produced by send_backfill",
		},
	)

	BackfillChunksReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcore_backfill_chunks_received_total",
			Help: "Total number of backfill chunks applied by receive_backfill",
		},
	)

	BackfillApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardcore_backfill_apply_duration_seconds",
			Help:    "Time taken to apply one HARD-durability backfill chunk",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Artificial-table adapter

	ArtificialBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardcore_artificial_batch_duration_seconds",
			Help:    "Time taken for a batched replace/insert fan-out to complete",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"}, // "replace", "insert"
	)

	ArtificialRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardcore_artificial_rows_total",
			Help: "Total number of rows processed by the artificial-table adapter, by outcome",
		},
		[]string{"outcome"}, // replaced, inserted, unchanged, errored, deleted, skipped
	)
)

func init() {
	prometheus.MustRegister(
		StoresOpenTotal,
		SindexCount,
		ReadDuration,
		WriteDuration,
		ResetDataPassesTotal,
		SindexCreatedTotal,
		SindexDroppedTotal,
		SindexClearedTotal,
		SindexClearChunksTotal,
		ModReportsAppliedTotal,
		QueuePushesTotal,
		QueuesRegistered,
		BackfillChunksSentTotal,
		BackfillChunksReceivedTotal,
		BackfillApplyDuration,
		ArtificialBatchDuration,
		ArtificialRowsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
