package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	if tracker.Percentile(50) != 0 {
		t.Fatalf("expected zero percentile without samples")
	}
	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for _, d := range durations {
		tracker.Observe(d)
	}

	if tracker.Count() != len(durations) {
		t.Fatalf("expected count %d, got %d", len(durations), tracker.Count())
	}

	p95 := tracker.Percentile(95)
	if p95 < 40*time.Millisecond || p95 > 50*time.Millisecond {
		t.Fatalf("expected percentile within [40ms,50ms], got %v", p95)
	}
	if p0 := tracker.Percentile(0); p0 > 10*time.Millisecond {
		t.Fatalf("expected p0 at the minimum, got %v", p0)
	}
}

func TestLatencyTrackerRotatesWindow(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() > 3 {
		t.Fatalf("expected window of at most 3, got %d", tracker.Count())
	}
	// only the newest window is consulted, so early samples no longer count
	if p := tracker.Percentile(0); p < 9*time.Millisecond {
		t.Fatalf("expected old samples to be rotated out, got %v", p)
	}
}
