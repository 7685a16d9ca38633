// Package style provides shared colors and icons for terminal output.
package style

import "github.com/charmbracelet/lipgloss"

// Brand Colors.
var (
	Iris   = lipgloss.Color("#8B5CF6")
	Slate  = lipgloss.Color("#667085")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Dot     = "●"
)

// Header renders a bold section title in the brand color.
func Header(title string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(Iris).Render(title)
}
