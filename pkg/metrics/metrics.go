package metrics

import (
	"time"

	"github.com/dd0wney/cluso-cask/pkg/status"
)

// StatusLabel maps an operation result to a status label value.
func StatusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case status.IsNotFound(err):
		return "not_found"
	case status.IsCorrupted(err):
		return "corrupted"
	default:
		return "error"
	}
}

// RecordOperation records one bucket operation
func (r *Registry) RecordOperation(bucket, operation string, err error, duration time.Duration) {
	r.OperationsTotal.WithLabelValues(bucket, operation, StatusLabel(err)).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordWrite adds appended key and value bytes
func (r *Registry) RecordWrite(bucket string, bytes int) {
	r.BytesWrittenTotal.WithLabelValues(bucket).Add(float64(bytes))
}

// RecordRotation counts a new active segment
func (r *Registry) RecordRotation(bucket string) {
	r.RotationsTotal.WithLabelValues(bucket).Inc()
}

// RecordCacheLookup counts a cache hit or miss
func (r *Registry) RecordCacheLookup(bucket string, hit bool) {
	if hit {
		r.CacheHitsTotal.WithLabelValues(bucket).Inc()
	} else {
		r.CacheMissesTotal.WithLabelValues(bucket).Inc()
	}
}

// UpdateBucketState sets the size gauges of a bucket
func (r *Registry) UpdateBucketState(bucket string, keys, segments int, diskBytes int64) {
	r.KeysTotal.WithLabelValues(bucket).Set(float64(keys))
	r.SegmentsTotal.WithLabelValues(bucket).Set(float64(segments))
	r.DiskUsageBytes.WithLabelValues(bucket).Set(float64(diskBytes))
}

// RecordCompaction records a finished compaction
func (r *Registry) RecordCompaction(bucket string, err error, duration time.Duration, reclaimed int64) {
	r.CompactionsTotal.WithLabelValues(bucket, StatusLabel(err)).Inc()
	r.CompactionDuration.WithLabelValues(bucket).Observe(duration.Seconds())
	if err == nil && reclaimed > 0 {
		r.CompactionReclaimed.WithLabelValues(bucket).Add(float64(reclaimed))
	}
}

// RecordRecovery records how the index of a bucket was rebuilt at open
func (r *Registry) RecordRecovery(bucket, source string, records int) {
	r.RecoveriesTotal.WithLabelValues(bucket, source).Inc()
	r.RecoveredRecordsTotal.WithLabelValues(bucket, source).Add(float64(records))
}

// RecordBackup records an export
func (r *Registry) RecordBackup(bucket string, err error, uploaded int64) {
	r.BackupsTotal.WithLabelValues(bucket, StatusLabel(err)).Inc()
	if uploaded > 0 {
		r.BackupUploadedBytes.WithLabelValues(bucket).Add(float64(uploaded))
	}
}
