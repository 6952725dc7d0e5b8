// Package live is the full-screen progress view of a running harness.
package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docstress/internal/runner"
	"docstress/internal/stats"
	"docstress/internal/tui/components"
	"docstress/internal/tui/styles"
)

// SnapshotMsg carries one stats update.
type SnapshotMsg stats.Snapshot

// DoneMsg is sent once the harness has returned.
type DoneMsg struct {
	Results []runner.WorkerResult
}

type Model struct {
	Target  string
	Updates runner.StatsUpdateChan

	Stats    stats.Snapshot
	Progress progress.Model

	RateLine    components.Sparkline
	LatencyLine components.Sparkline

	LastUpdate  time.Time
	LastWritten uint64

	Results  []runner.WorkerResult
	Done     bool
	Quitting bool

	Width  int
	Height int
}

func NewModel(target string, updates runner.StatsUpdateChan) Model {
	return Model{
		Target:      target,
		Updates:     updates,
		Progress:    progress.New(progress.WithDefaultGradient()),
		RateLine:    components.NewSparkline(40, "Docs/s", styles.Active),
		LatencyLine: components.NewSparkline(40, "Write P90 (ms)", styles.Warn),
		LastUpdate:  time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.Updates)
}

func waitForUpdate(sub runner.StatsUpdateChan) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-sub
		if !ok {
			return nil
		}
		return SnapshotMsg(snap)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m = m.observe(stats.Snapshot(msg), time.Now())
		return m, tea.Batch(m.Progress.SetPercent(m.Stats.Progress()), waitForUpdate(m.Updates))

	case DoneMsg:
		m.Results = msg.Results
		m.Done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = max(10, msg.Width-4)

		half := max(10, msg.Width/2-6)
		m.RateLine.Width = half
		m.LatencyLine.Width = half
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// observe folds snap into the model. The sparkline rate is measured between
// two updates rather than over the whole run.
func (m Model) observe(snap stats.Snapshot, now time.Time) Model {
	dt := max(now.Sub(m.LastUpdate).Seconds(), 0.01)
	delta := float64(snap.Written) - float64(m.LastWritten)

	m.RateLine.Push(delta / dt)
	m.LatencyLine.Push(snap.P90WriteMs)

	m.Stats = snap
	m.LastWritten = snap.Written
	m.LastUpdate = now
	return m
}

func (m Model) View() string {
	if m.Done {
		return styles.Success.Render("✔ all workers finished") + "\n"
	}
	if m.Quitting {
		return styles.Warn.Render("detached, waiting for workers to stop...") + "\n"
	}

	s := strings.Builder{}
	snap := m.Stats

	s.WriteString(styles.Title.Render("🚀 docstress → " + m.Target))
	s.WriteString("\n\n")

	errRate := 0.0
	if attempts := snap.Written + snap.WriteErrors; attempts > 0 {
		errRate = float64(snap.WriteErrors) / float64(attempts) * 100
	}

	col1 := fmt.Sprintf("DOCS: %d / %d\nRATE: %.1f/s", snap.Written, snap.Expected, snap.Rate())
	col2 := fmt.Sprintf("WORKERS: %d / %d\nFAILED:  %d", snap.WorkersDone, snap.Workers, snap.WorkersFailed)
	col3 := fmt.Sprintf("ERR: %.2f%%\nELAPSED: %s", errRate, snap.Elapsed.Round(time.Second))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(styles.ErrorRate(errRate).Render(col3)),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RateLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n\n")

	latencies := fmt.Sprintf(
		"P50: %.2f ms  |  P90: %.2f ms  |  P99: %.2f ms  |  Max: %.2f ms",
		snap.P50WriteMs, snap.P90WriteMs, snap.P99WriteMs, snap.MaxWriteMs,
	)
	s.WriteString(styles.Box.Render(latencies))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n")
	s.WriteString(styles.RenderKey("q", "detach"))

	return s.String()
}
