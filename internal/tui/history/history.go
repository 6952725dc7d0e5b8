// Package history browses persisted runs in a table.
package history

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docstress/internal/report"
	"docstress/internal/tui/styles"
)

type Model struct {
	Records []report.RunRecord
	Table   table.Model

	// Detail is the index of the record whose workers are shown, or -1.
	Detail int

	Width  int
	Height int
}

func NewModel(records []report.RunRecord) Model {
	columns := []table.Column{
		{Title: "Run", Width: 12},
		{Title: "Started", Width: 20},
		{Title: "Host", Width: 20},
		{Title: "Workers", Width: 8},
		{Title: "Failed", Width: 7},
		{Title: "Docs", Width: 10},
		{Title: "Docs/s", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(styles.ColorSelected).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		Records: records,
		Table:   t,
		Detail:  -1,
	}
	m.Table.SetRows(Rows(records))
	return m
}

// Rows renders one table row per record.
func Rows(records []report.RunRecord) []table.Row {
	rows := make([]table.Row, len(records))
	for i, rec := range records {
		rows[i] = table.Row{
			rec.RunID,
			startedAt(rec.RunID),
			rec.Host,
			strconv.Itoa(len(rec.Results)),
			strconv.Itoa(rec.Failed()),
			strconv.Itoa(rec.TotalDocs()),
			fmt.Sprintf("%.1f", rec.OpsPerSec()),
		}
	}
	return rows
}

// startedAt reads a unix-seconds run id as a time; other ids render empty.
func startedAt(runID string) string {
	sec, err := strconv.ParseInt(runID, 10, 64)
	if err != nil {
		return ""
	}
	return time.Unix(sec, 0).Format(time.DateTime)
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		m.Table.SetHeight(max(5, msg.Height/2))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if i := m.Table.Cursor(); i >= 0 && i < len(m.Records) {
				m.Detail = i
			}
			return m, nil
		case "esc":
			m.Detail = -1
			return m, nil
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if len(m.Records) == 0 {
		return styles.Subtle.Render("no runs recorded") + "\n"
	}

	out := styles.Box.Render(m.Table.View()) + "\n"
	if m.Detail >= 0 && m.Detail < len(m.Records) {
		out += report.WorkerTable(m.Records[m.Detail]) + "\n"
	}

	return out + lipgloss.JoinHorizontal(lipgloss.Center,
		styles.RenderKey("enter", "workers"), "  ",
		styles.RenderKey("esc", "close"), "  ",
		styles.RenderKey("q", "quit"),
	)
}
