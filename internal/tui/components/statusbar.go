package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	wsserial "github.com/allbin/go-wsserial"
	"github.com/allbin/go-wsserial/internal/tui/styles"
)

// ConnectionInfo is what the status bar shows about the device
type ConnectionInfo struct {
	Endpoint string
	State    wsserial.State
	Baud     int
	Muted    bool
	DTR      bool
}

// InfoFromStatus copies a manager snapshot, keeping the locally tracked DTR
func InfoFromStatus(s wsserial.Status, dtr bool) ConnectionInfo {
	return ConnectionInfo{
		Endpoint: s.Endpoint,
		State:    s.State,
		Baud:     s.Baud,
		Muted:    s.Muted,
		DTR:      dtr,
	}
}

type StatusBar struct {
	width int
	info  ConnectionInfo
	err   error
}

func NewStatusBar() *StatusBar {
	return &StatusBar{}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetInfo(info ConnectionInfo) {
	sb.info = info
}

func (sb *StatusBar) Info() ConnectionInfo {
	return sb.info
}

// SetError marks the indicator failed until the next successful connect
func (sb *StatusBar) SetError(err error) {
	sb.err = err
}

func (sb *StatusBar) indicator() string {
	connected := sb.info.State == wsserial.Connected
	connecting := sb.info.State == wsserial.Connecting
	symbol := "○"
	switch {
	case sb.err != nil && !connected:
		symbol = "✗"
	case connected:
		symbol = "●"
	}
	return styles.StateStyle(connected, connecting, sb.err != nil && !connected).Render(symbol)
}

func (sb *StatusBar) details() string {
	text := fmt.Sprintf("⚡ %d baud", sb.info.Baud)
	if sb.info.DTR {
		text += " DTR:✓"
	} else {
		text += " DTR:✗"
	}
	details := lipgloss.NewStyle().Foreground(styles.Subtext0).Padding(0, 1).Render(text)

	if sb.info.Muted {
		muted := lipgloss.NewStyle().
			Foreground(styles.Base).
			Background(styles.Peach).
			Bold(true).
			Padding(0, 1).
			Render("MUTED")
		details = lipgloss.JoinHorizontal(lipgloss.Left, muted, details)
	}
	return details
}

// Render draws the bar: mode, endpoint and state on the left, link details
// and the clock on the right
func (sb *StatusBar) Render(inputMode, sendingMode string, clock string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	modeBg := styles.Blue
	if inputMode == "INSERT" {
		modeBg = styles.Green
	}
	mode := lipgloss.NewStyle().
		Foreground(styles.Base).
		Background(modeBg).
		Bold(true).
		Padding(0, 1).
		Render(inputMode)

	endpoint := sb.info.Endpoint
	if endpoint == "" {
		endpoint = "no device"
	}
	device := lipgloss.NewStyle().
		Foreground(styles.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(endpoint)

	divider := lipgloss.NewStyle().Foreground(styles.Surface2).Padding(0, 1).Render("│")

	left := []string{mode, device, sb.indicator()}
	if inputMode == "INSERT" {
		left = append(left, lipgloss.NewStyle().
			Foreground(styles.Peach).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode)))
	}
	left = append(left, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, left...)

	clockView := lipgloss.NewStyle().Foreground(styles.Subtext1).Padding(0, 1).Render(clock)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, sb.details(), divider, clockView)

	spacer := width - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacer < 1 {
		spacer = 1
	}

	return lipgloss.NewStyle().
		Foreground(styles.Text).
		Background(styles.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left,
			leftSide,
			lipgloss.NewStyle().Width(spacer).Render(""),
			rightSide))
}
