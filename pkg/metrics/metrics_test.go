package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dd0wney/cluso-cask/pkg/status"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.OperationsTotal == nil || r.KeysTotal == nil || r.CacheHitsTotal == nil || r.CompactionsTotal == nil {
		t.Fatal("metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{status.Errorf(status.NotFound, "get", "k"), "not_found"},
		{status.Errorf(status.Corrupted, "get", "crc"), "corrupted"},
		{errors.New("disk"), "error"},
	}
	for _, tt := range tests {
		if got := StatusLabel(tt.err); got != tt.want {
			t.Errorf("StatusLabel(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestRecordOperation(t *testing.T) {
	r := NewRegistry()
	r.RecordOperation("users", "get", nil, time.Millisecond)
	r.RecordOperation("users", "get", nil, time.Millisecond)
	r.RecordOperation("users", "get", status.Errorf(status.NotFound, "get", "k"), time.Millisecond)

	if v := counterValue(t, r.OperationsTotal.WithLabelValues("users", "get", "ok")); v != 2 {
		t.Errorf("ok counter = %v, want 2", v)
	}
	if v := counterValue(t, r.OperationsTotal.WithLabelValues("users", "get", "not_found")); v != 1 {
		t.Errorf("not_found counter = %v, want 1", v)
	}
}

func TestBucketCounters(t *testing.T) {
	r := NewRegistry()
	r.RecordWrite("b", 100)
	r.RecordWrite("b", 28)
	r.RecordRotation("b")
	r.RecordCacheLookup("b", true)
	r.RecordCacheLookup("b", false)
	r.RecordCacheLookup("b", false)
	r.UpdateBucketState("b", 10, 3, 4096)
	r.RecordRecovery("b", "replay", 42)

	if v := counterValue(t, r.BytesWrittenTotal.WithLabelValues("b")); v != 128 {
		t.Errorf("bytes written = %v", v)
	}
	if v := counterValue(t, r.RotationsTotal.WithLabelValues("b")); v != 1 {
		t.Errorf("rotations = %v", v)
	}
	if v := counterValue(t, r.CacheMissesTotal.WithLabelValues("b")); v != 2 {
		t.Errorf("cache misses = %v", v)
	}
	if v := gaugeValue(t, r.SegmentsTotal.WithLabelValues("b")); v != 3 {
		t.Errorf("segments = %v", v)
	}
	if v := gaugeValue(t, r.DiskUsageBytes.WithLabelValues("b")); v != 4096 {
		t.Errorf("disk usage = %v", v)
	}
	if v := counterValue(t, r.RecoveredRecordsTotal.WithLabelValues("b", "replay")); v != 42 {
		t.Errorf("recovered records = %v", v)
	}
}

func TestRecordCompaction(t *testing.T) {
	r := NewRegistry()
	r.RecordCompaction("b", nil, time.Second, 1000)
	r.RecordCompaction("b", errors.New("rename"), time.Second, 500)

	if v := counterValue(t, r.CompactionReclaimed.WithLabelValues("b")); v != 1000 {
		t.Errorf("reclaimed = %v, want 1000", v)
	}
	if v := counterValue(t, r.CompactionsTotal.WithLabelValues("b", "error")); v != 1 {
		t.Errorf("failed compactions = %v", v)
	}
}

func TestGatherNames(t *testing.T) {
	r := NewRegistry()
	r.RecordOperation("b", "put", nil, time.Microsecond)
	r.RecordBackup("b", nil, 10)

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"cask_operations_total", "cask_backups_total", "cask_backup_uploaded_bytes_total"} {
		if !strings.Contains(joined, want) {
			t.Errorf("%s missing from %s", want, joined)
		}
	}
}
