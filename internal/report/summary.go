package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"docstress/internal/tui/styles"
)

// WriteSummary prints a human readable summary of rec followed by a per
// worker table.
func WriteSummary(w io.Writer, rec RunRecord) {
	fmt.Fprintf(w, "\n📊 RUN %s RESULTS\n", rec.RunID)
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Host / PID     : %s / %d\n", rec.Host, rec.ProcessID)
	fmt.Fprintf(w, "Workers        : %d (%d failed)\n", len(rec.Results), rec.Failed())
	fmt.Fprintf(w, "Docs Written   : %d\n", rec.TotalDocs())
	fmt.Fprintf(w, "Slowest Worker : %s\n", rec.MaxDuration().Round(time.Millisecond))
	fmt.Fprintf(w, "Aggregate Rate : %.2f docs/s\n", rec.OpsPerSec())
	fmt.Fprintf(w, "======================================================================\n")

	if len(rec.Results) == 0 {
		return
	}
	fmt.Fprintln(w, WorkerTable(rec))
}

// WorkerTable renders one line per worker result.
func WorkerTable(rec RunRecord) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
		Headers("WORKER", "DOCS", "DURATION", "DOCS/S", "ERROR")

	failed := make(map[int]bool)
	for i, res := range rec.Results {
		dur, rate, msg := "", "", ""
		if res.Err != nil {
			msg = res.Err.Error()
			failed[i] = true
		} else {
			dur = res.Duration.Round(time.Microsecond).String()
			rate = strconv.FormatFloat(res.OpsPerSec(), 'f', 2, 64)
		}
		t.Row(res.WorkerID, strconv.Itoa(res.DocsWritten), dur, rate, msg)
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		base := lipgloss.NewStyle().Padding(0, 1)
		switch {
		case row == table.HeaderRow:
			return base.Inherit(styles.Active)
		case failed[row]:
			return base.Inherit(styles.Error)
		}
		return base
	})

	return t.String()
}
