// Package metrics holds the domain Prometheus metrics of the entries service.
package metrics

import (
	"sync"
	"time"

	"github.com/localnerve/formentries/internal/media"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsOnce ensures metrics are only registered once.
var metricsOnce sync.Once

// metricsInstance is the singleton instance of the entries metrics.
var metricsInstance *Metrics

// Metrics holds all domain metrics. A nil *Metrics records nothing, so
// components built without metrics (tests, purgectl) need no guards.
type Metrics struct {
	// Lifecycle
	LifecycleOps   *prometheus.CounterVec // formentries_lifecycle_operations_total{op,target,result}
	RowsRemoved    *prometheus.CounterVec // formentries_rows_removed_total{op,kind}
	EntriesCreated *prometheus.CounterVec // formentries_entries_created_total{kind}

	// Bulk purge
	PurgeChunks        *prometheus.CounterVec   // formentries_purge_chunks_total{kind,result}
	PurgeChunkDuration *prometheus.HistogramVec // formentries_purge_chunk_duration_seconds{kind}
	LockContention     prometheus.Counter

	// Media
	MediaFilesDeleted *prometheus.CounterVec // formentries_media_files_deleted_total{bucket}
	MediaBytesDeleted *prometheus.CounterVec // formentries_media_bytes_deleted_total{bucket}
}

// Init registers all metrics with registry, or the default registerer when
// registry is nil. Subsequent calls return the same instance.
func Init(registry prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registry)
		metricsInstance = &Metrics{
			LifecycleOps: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "formentries_lifecycle_operations_total",
				Help: "Archive, delete and create operations by target and result",
			}, []string{"op", "target", "result"}),

			RowsRemoved: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "formentries_rows_removed_total",
				Help: "Entry and branch entry rows archived or deleted",
			}, []string{"op", "kind"}),

			EntriesCreated: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "formentries_entries_created_total",
				Help: "Entries and branch entries created by upload",
			}, []string{"kind"}),

			PurgeChunks: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "formentries_purge_chunks_total",
				Help: "Bulk purge chunks by kind and result",
			}, []string{"kind", "result"}),

			PurgeChunkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "formentries_purge_chunk_duration_seconds",
				Help:    "Time spent processing one bulk purge chunk",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			}, []string{"kind"}),

			LockContention: factory.NewCounter(prometheus.CounterOpts{
				Name: "formentries_purge_lock_contention_total",
				Help: "Bulk purge requests refused because a purge was already running",
			}),

			MediaFilesDeleted: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "formentries_media_files_deleted_total",
				Help: "Media files deleted per bucket",
			}, []string{"bucket"}),

			MediaBytesDeleted: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "formentries_media_bytes_deleted_total",
				Help: "Media bytes deleted per bucket",
			}, []string{"bucket"}),
		}
	})

	return metricsInstance
}

// Lifecycle records one archive/delete/create outcome.
func (m *Metrics) Lifecycle(op, target string, err error) {
	if m == nil {
		return
	}
	m.LifecycleOps.WithLabelValues(op, target, result(err)).Inc()
}

// Removed records rows leaving the live tables.
func (m *Metrics) Removed(op string, entries, branches int64) {
	if m == nil {
		return
	}
	m.RowsRemoved.WithLabelValues(op, "entry").Add(float64(entries))
	m.RowsRemoved.WithLabelValues(op, "branch_entry").Add(float64(branches))
}

// Created records one upload.
func (m *Metrics) Created(kind string) {
	if m == nil {
		return
	}
	m.EntriesCreated.WithLabelValues(kind).Inc()
}

// PurgeChunk records one bulk purge chunk.
func (m *Metrics) PurgeChunk(kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.PurgeChunks.WithLabelValues(kind, result(err)).Inc()
	m.PurgeChunkDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// Contention records a refused bulk purge.
func (m *Metrics) Contention() {
	if m == nil {
		return
	}
	m.LockContention.Inc()
}

// MediaRemoved records deleted media files.
func (m *Metrics) MediaRemoved(r media.Removal) {
	if m == nil {
		return
	}
	for bucket, c := range r.Buckets {
		m.MediaFilesDeleted.WithLabelValues(bucket).Add(float64(c.Files))
		m.MediaBytesDeleted.WithLabelValues(bucket).Add(float64(c.Bytes))
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
