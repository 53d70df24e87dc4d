package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics of a cask process. Every series carries a
// bucket label so several buckets can share one registry.
type Registry struct {
	// Operation Metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Storage Metrics
	KeysTotal         *prometheus.GaugeVec
	SegmentsTotal     *prometheus.GaugeVec
	DiskUsageBytes    *prometheus.GaugeVec
	BytesWrittenTotal *prometheus.CounterVec
	RotationsTotal    *prometheus.CounterVec

	// Cache Metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Maintenance Metrics
	CompactionsTotal      *prometheus.CounterVec
	CompactionDuration    *prometheus.HistogramVec
	CompactionReclaimed   *prometheus.CounterVec
	RecoveriesTotal       *prometheus.CounterVec
	RecoveredRecordsTotal *prometheus.CounterVec
	BackupsTotal          *prometheus.CounterVec
	BackupUploadedBytes   *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initOperationMetrics()
	r.initStorageMetrics()
	r.initCacheMetrics()
	r.initMaintenanceMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
