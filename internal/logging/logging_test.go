package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6007000, time.UTC)
	if got, want := FileName(ts), "docstress_2024-01-02-03-04-05-006007.log"; got != want {
		t.Errorf("FileName = %q, want %q", got, want)
	}
}

func TestVerbosityLevels(t *testing.T) {
	tests := []struct {
		opts Options
		want slog.Level
	}{
		{Options{}, slog.LevelWarn},
		{Options{Verbosity: 1}, slog.LevelInfo},
		{Options{Verbosity: 3}, slog.LevelDebug},
		{Options{Verbosity: 3, Level: "error"}, slog.LevelError},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		tt.opts.Stderr = &buf
		logger, closeFn, err := New(tt.opts)
		if err != nil {
			t.Fatalf("New(%+v) failed: %v", tt.opts, err)
		}
		closeFn()

		ctx := context.Background()
		if !logger.Enabled(ctx, tt.want) {
			t.Errorf("%+v: level %s disabled", tt.opts, tt.want)
		}
		if logger.Enabled(ctx, tt.want-1) {
			t.Errorf("%+v: level below %s enabled", tt.opts, tt.want)
		}
	}

	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	logger, closeFn, err := New(Options{Verbosity: 1, Dir: dir, Stderr: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("run.start", slog.Int("workers", 2))
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "docstress_*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("log files = %v, %v", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "run.start") || !strings.Contains(buf.String(), "workers=2") {
		t.Errorf("log not written to both sinks: file=%q stderr=%q", data, buf.String())
	}
}
