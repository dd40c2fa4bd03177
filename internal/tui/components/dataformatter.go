package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-wsserial/internal/tui/styles"
)

// Direction of a terminal line
type Direction int

const (
	RX Direction = iota
	TX
	Notice // connection changes and prompts, Text holds the message
)

// TxStatus tracks an outbound write
type TxStatus string

const (
	TxPending TxStatus = "PENDING"
	TxWritten TxStatus = "WRITTEN"
	TxDropped TxStatus = "DROPPED"
	TxError   TxStatus = "ERROR"
)

// Line is one entry in the terminal
type Line struct {
	Seq       int // identifies TX lines whose status is updated later
	Timestamp time.Time
	Dir       Direction
	Data      []byte
	Status    TxStatus
	Text      string
	IsError   bool
}

type DisplayMode struct {
	ShowHex   bool
	ShowASCII bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showASCII bool) *DataFormatter {
	return &DataFormatter{mode: DisplayMode{ShowHex: showHex, ShowASCII: showASCII}}
}

func (df *DataFormatter) DisplayMode() DisplayMode {
	return df.mode
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}

func (df *DataFormatter) indicator(l Line) string {
	style := lipgloss.NewStyle().Bold(true)
	switch l.Dir {
	case RX:
		return style.Foreground(styles.Sky).Render("↙ RX")
	case Notice:
		return style.Foreground(styles.Teal).Render("• --")
	}

	switch l.Status {
	case TxPending:
		return style.Foreground(styles.Yellow).Render("↗ TX ○")
	case TxWritten:
		return style.Foreground(styles.Green).Render("↗ TX ✓")
	case TxDropped:
		return style.Foreground(styles.Overlay0).Render("↗ TX ⊘")
	case TxError:
		return style.Foreground(styles.Red).Render("↗ TX ✗")
	default:
		return style.Foreground(styles.Peach).Render("↗ TX")
	}
}

// FormatLine renders l for the current display mode
func (df *DataFormatter) FormatLine(l Line) string {
	ts := lipgloss.NewStyle().
		Foreground(styles.Subtext0).
		Render("[" + l.Timestamp.Format("15:04:05.000") + "]")

	if l.Dir == Notice {
		text := styles.NoticeStyle.Render(l.Text)
		if l.IsError {
			text = styles.ErrorStyle.Render(l.Text)
		}
		return fmt.Sprintf("%s %s %s", ts, df.indicator(l), text)
	}

	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, fmt.Sprintf("HEX: % X", l.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+Printable(l.Data))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(l.Data)))
	}

	return fmt.Sprintf("%s %s: %s", ts, df.indicator(l), strings.Join(parts, "  "))
}

// Printable replaces anything outside printable ASCII with a dot so device
// output cannot inject terminal control sequences
func Printable(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
