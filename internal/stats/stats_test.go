package stats

import (
	"errors"
	"testing"
	"time"
)

func TestObserve(t *testing.T) {
	s := New(2, 3)

	s.ObserveWrite(0, 2*time.Millisecond, nil)
	s.ObserveWrite(0, 4*time.Millisecond, nil)
	s.ObserveWrite(1, time.Millisecond, errors.New("boom"))
	s.ObserveDone(0, 2, 10*time.Millisecond, nil)

	snap := s.Snapshot()
	if snap.Written != 2 {
		t.Errorf("written = %d, want 2", snap.Written)
	}
	if snap.WriteErrors != 1 {
		t.Errorf("write errors = %d, want 1", snap.WriteErrors)
	}
	if snap.Expected != 6 {
		t.Errorf("expected = %d, want 6", snap.Expected)
	}
	if snap.Done() {
		t.Error("snapshot reports done with one worker outstanding")
	}
	if snap.MaxWriteMs < 3.9 || snap.MaxWriteMs > 4.1 {
		t.Errorf("max write = %.3fms, want ~4ms", snap.MaxWriteMs)
	}
	if snap.MeanWriteMs < 2.9 || snap.MeanWriteMs > 3.1 {
		t.Errorf("mean write = %.3fms, want ~3ms", snap.MeanWriteMs)
	}

	s.ObserveDone(1, 0, 0, errors.New("boom"))
	snap = s.Snapshot()
	if !snap.Done() {
		t.Error("snapshot not done after both workers")
	}
	if snap.WorkersFailed != 1 {
		t.Errorf("workers failed = %d, want 1", snap.WorkersFailed)
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want float64
	}{
		{"half", Snapshot{Written: 5, Expected: 10}, 0.5},
		{"clamped", Snapshot{Written: 12, Expected: 10}, 1},
		{"no docs pending", Snapshot{Workers: 2}, 0},
		{"no docs done", Snapshot{Workers: 2, WorkersDone: 2}, 1},
	}

	for _, tt := range tests {
		if got := tt.snap.Progress(); got != tt.want {
			t.Errorf("%s: Progress = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHistogramClamps(t *testing.T) {
	h := NewSafeHistogram()
	h.RecordDuration(0)
	h.RecordDuration(2 * time.Hour)

	if h.TotalCount() != 2 {
		t.Errorf("count = %d, want 2", h.TotalCount())
	}
}
