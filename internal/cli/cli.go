// Package cli prints headless progress for runs without the terminal UI.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"docstress/internal/config"
	"docstress/internal/stats"
	"docstress/internal/store"
)

// PrintHeader prints the run parameters.
func PrintHeader(w io.Writer, cfg config.Config, runID string) {
	def := cfg.Workload()

	fmt.Fprintf(w, "\n🚀 STARTING DOCSTRESS RUN %s\n", runID)
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Server     : %s (%s)\n", store.Addr(cfg.Host, cfg.Port), cfg.Backend)
	fmt.Fprintf(w, "Target     : %s.%s\n", cfg.Database, def.Target())
	fmt.Fprintf(w, "Workers    : %d x %d docs\n", cfg.Workers, cfg.Docs)
	if !def.StartAt.IsZero() {
		fmt.Fprintf(w, "Start At   : %s\n", def.StartAt.Format(time.RFC3339))
	} else if cfg.Sync {
		fmt.Fprintf(w, "Start At   : synchronized\n")
	}
	if cfg.Pause > 0 {
		fmt.Fprintf(w, "Pause      : %s between writes\n", cfg.Pause)
	}
	fmt.Fprintf(w, "======================================================================\n\n")
}

// Monitor redraws one progress line per snapshot until done is closed, then
// ends the line.
func Monitor(w io.Writer, updates <-chan stats.Snapshot, done <-chan struct{}) {
	var last stats.Snapshot
	for {
		select {
		case snap := <-updates:
			last = snap
			fmt.Fprint(w, "\r"+ProgressLine(snap))
		case <-done:
		drain:
			for {
				select {
				case snap := <-updates:
					last = snap
				default:
					break drain
				}
			}
			if last.Workers > 0 {
				fmt.Fprint(w, "\r"+ProgressLine(last))
			}
			fmt.Fprintln(w)
			return
		}
	}
}

// ProgressLine is the single status line for snap.
func ProgressLine(snap stats.Snapshot) string {
	pct := snap.Progress()
	return fmt.Sprintf("%s %3.0f%% | %s | Docs: %d/%d | Rate: %.1f/s | Done: %d/%d | Fail: %d",
		progressBar(pct, 20), pct*100,
		snap.Elapsed.Round(time.Second),
		snap.Written, snap.Expected,
		snap.Rate(),
		snap.WorkersDone, snap.Workers,
		snap.WorkersFailed,
	)
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
