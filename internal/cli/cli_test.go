package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"docstress/internal/config"
	"docstress/internal/stats"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0, "[----]"},
		{0.5, "[██--]"},
		{1, "[████]"},
		{1.5, "[████]"},
		{-1, "[----]"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.pct, 4); got != tt.want {
			t.Errorf("progressBar(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestMonitorPrintsLastSnapshot(t *testing.T) {
	updates := make(chan stats.Snapshot, 4)
	done := make(chan struct{})

	updates <- stats.Snapshot{Written: 5, Expected: 10, Workers: 1, Elapsed: time.Second}
	updates <- stats.Snapshot{Written: 10, Expected: 10, Workers: 1, WorkersDone: 1, Elapsed: 2 * time.Second}
	close(done)

	var buf bytes.Buffer
	Monitor(&buf, updates, done)

	out := buf.String()
	if !strings.Contains(out, "Docs: 10/10") || !strings.Contains(out, "100%") {
		t.Errorf("final progress missing:\n%q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("progress line not terminated")
	}
}

func TestPrintHeader(t *testing.T) {
	cfg := config.Default()
	cfg.Host = "db1"
	cfg.Workers = 4
	cfg.Sync = true

	var buf bytes.Buffer
	PrintHeader(&buf, cfg, "1700000000")

	out := buf.String()
	for _, want := range []string{"RUN 1700000000", "db1:27018", "4 x 1000 docs", "stress.data", "synchronized"} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q:\n%s", want, out)
		}
	}
}
