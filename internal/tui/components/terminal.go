package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
)

// maxLines bounds the scrollback
const maxLines = 5000

// Terminal is a scrolling log of traffic and notices
type Terminal struct {
	viewport  viewport.Model
	formatter *DataFormatter
	lines     []Line
	formatted []string // rendered lines, parallel to lines
	follow    bool
	dirty     bool
}

func NewTerminal(width, height int) *Terminal {
	return &Terminal{
		viewport:  viewport.New(width, height),
		formatter: NewDataFormatter(true, true),
		follow:    true,
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
	t.dirty = true
}

// Add appends a line, dropping the oldest past the scrollback limit
func (t *Terminal) Add(l Line) {
	t.lines = append(t.lines, l)
	t.formatted = append(t.formatted, "")
	if len(t.lines) > maxLines {
		t.lines = append(t.lines[:0], t.lines[len(t.lines)-maxLines:]...)
		t.formatted = append(t.formatted[:0], t.formatted[len(t.formatted)-maxLines:]...)
	}
	t.formatted[len(t.formatted)-1] = t.formatter.FormatLine(l)
	t.dirty = true
}

// SetStatus updates the TX line with seq. It reports whether one was found.
func (t *Terminal) SetStatus(seq int, status TxStatus) bool {
	for i := len(t.lines) - 1; i >= 0; i-- {
		if t.lines[i].Dir == TX && t.lines[i].Seq == seq {
			t.lines[i].Status = status
			t.formatted[i] = t.formatter.FormatLine(t.lines[i])
			t.dirty = true
			return true
		}
	}
	return false
}

func (t *Terminal) Lines() []Line {
	return t.lines
}

func (t *Terminal) Clear() {
	t.lines = nil
	t.formatted = nil
	t.dirty = true
}

func (t *Terminal) ToggleHex() {
	t.formatter.ToggleHex()
	t.reformat()
}

func (t *Terminal) ToggleASCII() {
	t.formatter.ToggleASCII()
	t.reformat()
}

func (t *Terminal) DisplayMode() DisplayMode {
	return t.formatter.DisplayMode()
}

func (t *Terminal) ScrollUp() {
	t.sync()
	t.viewport.LineUp(1)
	t.follow = t.viewport.AtBottom()
}

func (t *Terminal) ScrollDown() {
	t.sync()
	t.viewport.LineDown(1)
	t.follow = t.viewport.AtBottom()
}

func (t *Terminal) GotoTop() {
	t.sync()
	t.viewport.GotoTop()
	t.follow = false
}

func (t *Terminal) GotoBottom() {
	t.sync()
	t.viewport.GotoBottom()
	t.follow = true
}

func (t *Terminal) reformat() {
	for i, l := range t.lines {
		t.formatted[i] = t.formatter.FormatLine(l)
	}
	t.dirty = true
}

// sync pushes pending lines into the viewport
func (t *Terminal) sync() {
	if !t.dirty {
		return
	}
	t.dirty = false
	t.viewport.SetContent(strings.Join(t.formatted, "\n"))
	if t.follow {
		t.viewport.GotoBottom()
	}
}

func (t *Terminal) View() string {
	t.sync()
	return t.viewport.View()
}
