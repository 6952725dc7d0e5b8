package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var levels = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// Sparkline is a one-line scrolling chart of the last Width samples, scaled
// to the largest visible sample.
type Sparkline struct {
	Data  []float64
	Width int
	Label string
	Style lipgloss.Style
}

func NewSparkline(width int, label string, style lipgloss.Style) Sparkline {
	return Sparkline{
		Width: width,
		Label: label,
		Style: style,
		Data:  make([]float64, 0, width),
	}
}

func (s *Sparkline) Push(v float64) {
	s.Data = append(s.Data, max(0, v))
	if s.Width > 0 && len(s.Data) > s.Width {
		s.Data = s.Data[len(s.Data)-s.Width:]
	}
}

// Peak is the largest visible sample.
func (s Sparkline) Peak() float64 {
	peak := 0.0
	for _, v := range s.Data {
		peak = max(peak, v)
	}
	return peak
}

// Graph renders the bars only, padded to Width.
func (s Sparkline) Graph() string {
	if s.Width <= 0 {
		return ""
	}

	peak := s.Peak()
	var graph strings.Builder
	for _, v := range s.Data {
		if peak == 0 {
			graph.WriteString(levels[0])
			continue
		}
		idx := int(v / peak * float64(len(levels)-1))
		graph.WriteString(levels[min(max(idx, 0), len(levels)-1)])
	}

	if pad := s.Width - len(s.Data); pad > 0 {
		graph.WriteString(strings.Repeat(" ", pad))
	}
	return graph.String()
}

func (s Sparkline) View() string {
	if s.Width <= 0 {
		return ""
	}
	return s.Style.Render(s.Label) + "\n" + s.Style.Render(s.Graph())
}
