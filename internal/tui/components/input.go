package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-wsserial/internal/tui/styles"
)

type SendingMode int

const (
	SendingModeASCII SendingMode = iota
	SendingModeHex
)

func (s SendingMode) String() string {
	if s == SendingModeHex {
		return "HEX"
	}
	return "ASCII"
}

const (
	historySize      = 100
	asciiPlaceholder = "Type message and press Enter to send..."
	hexPlaceholder   = "Enter hex (e.g. 48656C6C6F or 48 65 6C 6C 6F)..."
)

// Input is the single line editor with a shell-like history
type Input struct {
	textInput textinput.Model
	mode      SendingMode
	width     int

	history []string
	cursor  int    // index into history while browsing, len(history) otherwise
	draft   string // what was typed before browsing started
}

func NewInput() *Input {
	ti := textinput.New()
	ti.Placeholder = asciiPlaceholder
	ti.CharLimit = 1024
	ti.Prompt = ""
	ti.Focus()

	return &Input{textInput: ti}
}

func (i *Input) SetWidth(width int) {
	i.width = width
	// border, padding and the prompt symbol
	i.textInput.Width = max(width-6, 20)
}

func (i *Input) Focus() {
	i.textInput.Focus()
}

func (i *Input) Blur() {
	i.textInput.Blur()
}

func (i *Input) Value() string {
	return i.textInput.Value()
}

func (i *Input) SetValue(value string) {
	i.textInput.SetValue(value)
}

func (i *Input) Mode() SendingMode {
	return i.mode
}

func (i *Input) ToggleMode() {
	if i.mode == SendingModeASCII {
		i.mode = SendingModeHex
		i.textInput.Placeholder = hexPlaceholder
		return
	}
	i.mode = SendingModeASCII
	i.textInput.Placeholder = asciiPlaceholder
}

func (i *Input) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return cmd
}

// Remember stores a sent line, skipping blanks and repeats of the last one
func (i *Input) Remember(line string) {
	line = strings.TrimSpace(line)
	if line != "" && (len(i.history) == 0 || i.history[len(i.history)-1] != line) {
		i.history = append(i.history, line)
		if len(i.history) > historySize {
			i.history = i.history[len(i.history)-historySize:]
		}
	}
	i.cursor = len(i.history)
	i.draft = ""
}

// Previous shows the older history entry
func (i *Input) Previous() {
	if len(i.history) == 0 || i.cursor == 0 {
		return
	}
	if i.cursor >= len(i.history) {
		i.cursor = len(i.history)
		i.draft = i.textInput.Value()
	}
	i.cursor--
	i.textInput.SetValue(i.history[i.cursor])
}

// Next shows the newer history entry, then the draft
func (i *Input) Next() {
	if i.cursor >= len(i.history) {
		return
	}
	i.cursor++
	if i.cursor == len(i.history) {
		i.textInput.SetValue(i.draft)
		i.draft = ""
		return
	}
	i.textInput.SetValue(i.history[i.cursor])
}

func (i *Input) View(insert bool) string {
	symbol, color := ">", styles.Green
	if i.mode == SendingModeHex {
		symbol, color = "#", styles.Yellow
	}
	prompt := lipgloss.NewStyle().Foreground(color).Bold(true).Render(symbol)

	content := styles.HintStyle.Render("Press 'i' to enter insert mode")
	if insert {
		content = i.textInput.View()
	}

	style := styles.InputStyle.
		Width(max(i.width-4, 10)).
		AlignHorizontal(lipgloss.Left)
	if insert {
		style = style.BorderForeground(styles.Green)
	}
	return style.Render(lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", content))
}
