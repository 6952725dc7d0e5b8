package banner

import (
	"docstress/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

const ascii = `
    ____             _____ __                      
   / __ \____  _____/ ___// /_________  __________
  / / / / __ \/ ___/\__ \/ __/ ___/ _ \/ ___/ ___/
 / /_/ / /_/ / /__ ___/ / /_/ /  /  __(__  |__  ) 
/_____/\____/\___//____/\__/_/   \___/____/____/  `

// GetString renders the banner shown above the help text.
func GetString() string {
	style := lipgloss.DefaultRenderer().NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	return "\n" + style.Render(ascii) + "\n" +
		styles.Subtle.Render("  parallel write load for document stores") + "\n"
}
