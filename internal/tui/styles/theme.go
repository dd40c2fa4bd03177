package styles

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha, trimmed to what the terminal uses
var (
	Base     = lipgloss.Color("#1e1e2e")
	Surface0 = lipgloss.Color("#313244")
	Surface1 = lipgloss.Color("#45475a")
	Surface2 = lipgloss.Color("#585b70")
	Overlay0 = lipgloss.Color("#6c7086")
	Subtext0 = lipgloss.Color("#a6adc8")
	Subtext1 = lipgloss.Color("#bac2de")
	Text     = lipgloss.Color("#cdd6f4")

	Blue   = lipgloss.Color("#89b4fa")
	Sky    = lipgloss.Color("#89dceb")
	Teal   = lipgloss.Color("#94e2d5")
	Green  = lipgloss.Color("#a6e3a1")
	Yellow = lipgloss.Color("#f9e2af")
	Peach  = lipgloss.Color("#fab387")
	Red    = lipgloss.Color("#f38ba8")
	Mauve  = lipgloss.Color("#cba6f7")
)

var (
	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(Surface1)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Surface2).
			Padding(0, 1)

	// Connection notices and prompts shown inline in the terminal
	NoticeStyle = lipgloss.NewStyle().
			Foreground(Teal).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Red)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Mauve).
			Padding(0, 1)

	HintStyle = lipgloss.NewStyle().
			Foreground(Overlay0)
)

// StateStyle colors a connection state indicator
func StateStyle(connected, connecting, failed bool) lipgloss.Style {
	switch {
	case failed:
		return lipgloss.NewStyle().Foreground(Red)
	case connected:
		return lipgloss.NewStyle().Foreground(Green)
	case connecting:
		return lipgloss.NewStyle().Foreground(Yellow)
	default:
		return lipgloss.NewStyle().Foreground(Red)
	}
}
