package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initOperationMetrics() {
	r.OperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_operations_total",
			Help: "Total number of bucket operations",
		},
		[]string{"bucket", "operation", "status"},
	)

	r.OperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cask_operation_duration_seconds",
			Help:    "Bucket operation duration in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)
}

func (r *Registry) initStorageMetrics() {
	r.KeysTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cask_keys_total",
			Help: "Number of live keys in the index",
		},
		[]string{"bucket"},
	)

	r.SegmentsTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cask_segments_total",
			Help: "Number of segment files",
		},
		[]string{"bucket"},
	)

	r.DiskUsageBytes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cask_disk_usage_bytes",
			Help: "Bytes held by segment files",
		},
		[]string{"bucket"},
	)

	r.BytesWrittenTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_bytes_written_total",
			Help: "Key and value bytes appended to segments",
		},
		[]string{"bucket"},
	)

	r.RotationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_segment_rotations_total",
			Help: "Number of new active segments created",
		},
		[]string{"bucket"},
	)
}

func (r *Registry) initCacheMetrics() {
	r.CacheHitsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_cache_hits_total",
			Help: "Reads served from the read cache",
		},
		[]string{"bucket"},
	)

	r.CacheMissesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_cache_misses_total",
			Help: "Reads that went to a segment",
		},
		[]string{"bucket"},
	)
}

func (r *Registry) initMaintenanceMetrics() {
	r.CompactionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_compactions_total",
			Help: "Number of compactions",
		},
		[]string{"bucket", "status"},
	)

	r.CompactionDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cask_compaction_duration_seconds",
			Help:    "Compaction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"bucket"},
	)

	r.CompactionReclaimed = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_compaction_reclaimed_bytes_total",
			Help: "Segment bytes released by compaction",
		},
		[]string{"bucket"},
	)

	r.RecoveriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_index_recoveries_total",
			Help: "Index rebuilds at open, by source (hint or replay)",
		},
		[]string{"bucket", "source"},
	)

	r.RecoveredRecordsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_index_recovered_records_total",
			Help: "Records read while rebuilding the index",
		},
		[]string{"bucket", "source"},
	)

	r.BackupsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_backups_total",
			Help: "Number of bucket exports",
		},
		[]string{"bucket", "status"},
	)

	r.BackupUploadedBytes = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cask_backup_uploaded_bytes_total",
			Help: "Bytes uploaded by bucket exports",
		},
		[]string{"bucket"},
	)
}
