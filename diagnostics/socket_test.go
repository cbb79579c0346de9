package diagnostics

import (
	"context"
	"testing"
)

func TestCollectReportsPerPathQueueDepths(t *testing.T) {
	depths := []int{2, 5, 0}
	depthFn := func(idx int) int { return depths[idx] }

	report, err := Collect(context.Background(), depthFn, len(depths), 10)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(report.QueueDepths) != len(depths) {
		t.Fatalf("len(QueueDepths) = %d, want %d", len(report.QueueDepths), len(depths))
	}
	for i, want := range depths {
		if report.QueueDepths[i] != want {
			t.Errorf("QueueDepths[%d] = %d, want %d", i, report.QueueDepths[i], want)
		}
	}
	if report.Saturated {
		t.Errorf("expected Saturated = false when every depth is below the high-water mark")
	}
}

func TestCollectFlagsSaturation(t *testing.T) {
	depthFn := func(idx int) int { return 10 }

	report, err := Collect(context.Background(), depthFn, 1, 10)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !report.Saturated {
		t.Errorf("expected Saturated = true when a depth meets the high-water mark")
	}
}

func TestCollectZeroHighWaterMarkNeverSaturates(t *testing.T) {
	depthFn := func(idx int) int { return 1000 }

	report, err := Collect(context.Background(), depthFn, 1, 0)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Saturated {
		t.Errorf("expected Saturated = false when highWaterMark is 0 (disabled)")
	}
}
