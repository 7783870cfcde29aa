package pipeline

import (
	"math"
	"testing"
	"time"
)

func TestLatencyStatsSnapshotPercentiles(t *testing.T) {
	stats := NewLatencyStats(time.Hour)
	for _, us := range []int64{100, 200, 300, 400, 500} {
		stats.Record(time.Duration(us) * time.Microsecond)
	}

	snap := stats.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinUs != 100 || snap.MaxUs != 500 {
		t.Fatalf("expected min=100 max=500, got min=%d max=%d", snap.MinUs, snap.MaxUs)
	}
	if snap.AvgUs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgUs)
	}
	if snap.P50Us != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Us)
	}
	if math.Abs(snap.P95Us-480) > 1e-6 {
		t.Fatalf("expected p95=480, got %f", snap.P95Us)
	}
	if math.Abs(snap.P99Us-496) > 1e-6 {
		t.Fatalf("expected p99=496, got %f", snap.P99Us)
	}
}

func TestLatencyStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewLatencyStats(10 * time.Millisecond)
	stats.Record(time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if snap := stats.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}

	stats.Record(200 * time.Microsecond)
	snap := stats.Snapshot()
	if snap.Count != 1 || snap.MinUs != 200 || snap.MaxUs != 200 {
		t.Fatalf("expected one 200us sample, got %+v", snap)
	}
}

func TestLatencyStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewLatencyStats(time.Hour)
	stats.Record(-10 * time.Microsecond)
	snap := stats.Snapshot()
	if snap.Count != 1 || snap.MaxUs != 0 {
		t.Fatalf("expected clamped duration=0, got %+v", snap)
	}
}
