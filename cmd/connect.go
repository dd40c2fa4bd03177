/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	wsserial "github.com/allbin/go-wsserial"
	"github.com/allbin/go-wsserial/internal/tui/components"
	"github.com/allbin/go-wsserial/internal/tui/keys"
	"github.com/allbin/go-wsserial/internal/tui/models"
	"github.com/allbin/go-wsserial/internal/tui/styles"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect [endpoint]",
	Short: "Open an interactive terminal to a device",
	Long: `Open an interactive terminal to the serial port of a device.

Without an endpoint a picker of known devices is shown; press 'n' there to
add a new one. The connection is never retried on its own, press 'r' to
connect again after a failure or a remote close.

Keys (normal mode):
  i        insert mode, enter sends and esc leaves
  tab      switch between ascii and hex input
  t        toggle DTR
  m        mute, writes are dropped and received data is hidden
  r        reconnect
  d / n    device picker / add a device
  c        clear the buffer
  h / a    toggle hex / ascii display
  q        quit

Example usage:
  wsserial connect rock64.local
  wsserial connect 10.0.0.12 --baud 9600
  wsserial connect`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var endpoint string
		if len(args) == 1 {
			endpoint = args[0]
		}

		baud := 0
		if cmd.Flags().Changed("baud") {
			baud, _ = cmd.Flags().GetInt("baud")
		}

		if err := runConnectTUI(endpoint, baud); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().IntP("baud", "b", 115200, "Baud rate to set before connecting (default: the persisted rate)")
}

// connectModel represents the Bubble Tea model for the connect command
type connectModel struct {
	session   *models.Session
	terminal  *components.Terminal
	statusBar *components.StatusBar
	input     *components.Input
	picker    *components.DevicePicker
	help      help.Model
	keys      keys.ConnectKeys

	initial    tea.Cmd
	showPicker bool
	ready      bool
	width      int
	height     int
}

func runConnectTUI(endpoint string, baud int) error {
	m, _, err := newManager(true)
	if err != nil {
		return err
	}

	if baud != 0 {
		if _, err := m.SetBaud(baud); err != nil {
			return err
		}
	}

	session := models.NewSession(m)
	model := &connectModel{
		session:   session,
		terminal:  components.NewTerminal(0, 0), // Sized by WindowSizeMsg
		statusBar: components.NewStatusBar(),
		input:     components.NewInput(),
		picker:    components.NewDevicePicker(),
		help:      help.New(),
		keys:      keys.NewConnectKeys(),
	}
	model.refresh()

	switch {
	case endpoint != "":
		model.initial = session.Select(endpoint)
	case len(m.Devices()) == 0:
		model.showPicker = true
		model.initial = session.RequestDevice()
	default:
		model.showPicker = true
	}

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	sub := session.Forward(p.Send)

	_, err = p.Run()

	sub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = session.Close(ctx)
	return err
}

func (m *connectModel) Init() tea.Cmd {
	return m.initial
}

// parseHexInput converts hex strings to bytes. Supports both:
// - Space-separated: "48 65 6C 6C 6F"
// - Continuous: "48656C6C6F"
func parseHexInput(hexStr string) ([]byte, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(hexStr), " ", "")
	if clean == "" {
		return nil, fmt.Errorf("empty input")
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even number of digits (got %d)", len(clean))
	}

	out := make([]byte, 0, len(clean)/2)
	for i := 0; i < len(clean); i += 2 {
		b, err := strconv.ParseUint(clean[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte '%s'", clean[i:i+2])
		}
		out = append(out, byte(b))
	}
	return out, nil
}

func (m *connectModel) refresh() {
	status := m.session.Status()
	m.statusBar.SetInfo(components.InfoFromStatus(status, m.session.DTR()))
	m.picker.SetDevices(m.session.Manager().Devices(), status.Endpoint)
}

func (m *connectModel) notice(text string, isErr bool) {
	m.terminal.Add(components.Line{
		Timestamp: time.Now(),
		Dir:       components.Notice,
		Text:      text,
		IsError:   isErr,
	})
}

func (m *connectModel) layout() {
	if !m.ready {
		return
	}
	// Input box with border plus the status bar
	reserved := 4
	if m.help.ShowAll {
		reserved += lipgloss.Height(m.help.View(m.keys))
	}
	m.terminal.SetSize(m.width, max(m.height-reserved, 1))
	m.input.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)
	m.help.Width = m.width
}

func (m *connectModel) handleEvent(e wsserial.Event) {
	switch e.Kind {
	case wsserial.EventData:
		if !m.statusBar.Info().Muted {
			m.terminal.Add(components.Line{Timestamp: time.Now(), Dir: components.RX, Data: e.Data})
		}
	case wsserial.EventConnected:
		m.statusBar.SetError(nil)
		m.notice("connected to "+e.Endpoint, false)
	case wsserial.EventDisconnected:
		m.notice("disconnected from "+e.Endpoint+", press r to reconnect", false)
	case wsserial.EventDeviceSelected:
		if e.Endpoint == "" {
			m.notice("no device selected", false)
		}
	case wsserial.EventDevicePrompt:
		m.showPicker = true
	case wsserial.EventErrorPrompt:
		m.statusBar.SetError(errors.New(e.Text))
		m.notice(e.Text, true)
	}
	m.refresh()
}

func (m *connectModel) send() tea.Cmd {
	text := m.input.Value()
	if text == "" {
		return nil
	}

	var data []byte
	encode := false
	switch m.input.Mode() {
	case components.SendingModeHex:
		var err error
		if data, err = parseHexInput(text); err != nil {
			m.notice(fmt.Sprintf("Invalid hex input: %v", err), true)
			return nil
		}
	default:
		data = []byte(text + "\n")
		encode = true
	}

	seq := m.session.NextSeq()
	m.terminal.Add(components.Line{
		Seq:       seq,
		Timestamp: time.Now(),
		Dir:       components.TX,
		Data:      data,
		Status:    components.TxPending,
	})
	m.input.Remember(text)
	m.input.SetValue("")
	return m.session.Write(seq, data, encode)
}

func (m *connectModel) writeDone(msg models.WriteResultMsg) {
	switch {
	case msg.Err == nil:
		m.terminal.SetStatus(msg.Seq, components.TxWritten)
	case errors.Is(msg.Err, wsserial.ErrWriteDropped),
		errors.Is(msg.Err, wsserial.ErrMuted),
		errors.Is(msg.Err, wsserial.ErrNoDevice):
		m.terminal.SetStatus(msg.Seq, components.TxDropped)
		m.notice(msg.Err.Error(), false)
	default:
		m.terminal.SetStatus(msg.Seq, components.TxError)
		m.notice(msg.Err.Error(), true)
	}
}

func (m *connectModel) updatePicker(msg tea.KeyMsg) tea.Cmd {
	if m.picker.Prompting() {
		switch msg.String() {
		case "ctrl+c":
			return tea.Quit
		case "esc":
			m.picker.CancelPrompt()
			return nil
		case "enter":
			endpoint := strings.TrimSpace(m.picker.Entered())
			if endpoint == "" {
				return nil
			}
			m.showPicker = false
			return m.session.Register(endpoint)
		}
		return m.picker.Update(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Enter):
		if endpoint, ok := m.picker.Selected(); ok {
			m.showPicker = false
			return m.session.Select(endpoint)
		}
		return nil
	case key.Matches(msg, m.keys.NewDevice):
		return m.session.RequestDevice()
	case key.Matches(msg, m.keys.Escape):
		if m.session.Status().Endpoint != "" {
			m.showPicker = false
		}
		return nil
	}
	return m.picker.Update(msg)
}

func (m *connectModel) updateInsert(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.session.SetInputMode(models.InputModeNormal)
		m.input.Blur()
		return nil
	case key.Matches(msg, m.keys.Enter):
		return m.send()
	case msg.Type == tea.KeyUp:
		m.input.Previous()
		return nil
	case msg.Type == tea.KeyDown:
		m.input.Next()
		return nil
	case key.Matches(msg, m.keys.ToggleSendMode):
		m.input.ToggleMode()
		return nil
	}
	return m.input.Update(msg)
}

func (m *connectModel) updateNormal(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.InsertMode):
		m.session.SetInputMode(models.InputModeInsert)
		m.input.Focus()
	case key.Matches(msg, m.keys.Clear):
		m.terminal.Clear()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
	case key.Matches(msg, m.keys.ToggleHex):
		m.terminal.ToggleHex()
	case key.Matches(msg, m.keys.ToggleASCII):
		m.terminal.ToggleASCII()
	case key.Matches(msg, m.keys.ToggleSendMode):
		m.input.ToggleMode()
	case key.Matches(msg, m.keys.ToggleDTR):
		cmd := m.session.ToggleDTR()
		m.notice("DTR "+formatSignalState(m.session.DTR()), false)
		m.refresh()
		return cmd
	case key.Matches(msg, m.keys.Mute):
		return m.session.ToggleMute()
	case key.Matches(msg, m.keys.Reconnect):
		return m.session.Reconnect()
	case key.Matches(msg, m.keys.Devices):
		m.refresh()
		m.showPicker = true
	case key.Matches(msg, m.keys.NewDevice):
		return m.session.RequestDevice()
	case key.Matches(msg, m.keys.Up):
		m.terminal.ScrollUp()
	case key.Matches(msg, m.keys.Down):
		m.terminal.ScrollDown()
	case key.Matches(msg, m.keys.GotoTop):
		m.terminal.GotoTop()
	case key.Matches(msg, m.keys.GotoBottom):
		m.terminal.GotoBottom()
	}
	return nil
}

func (m *connectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()

	case models.EventMsg:
		wasPrompt := msg.Event.Kind == wsserial.EventDevicePrompt
		m.handleEvent(msg.Event)
		if wasPrompt {
			return m, m.picker.Prompt()
		}

	case models.WriteResultMsg:
		m.writeDone(msg)

	case models.ActionMsg:
		m.statusBar.SetError(msg.Err)
		// Unusable endpoints already arrived as an error prompt
		if !errors.Is(msg.Err, wsserial.ErrInvalidEndpoint) {
			m.notice(fmt.Sprintf("%s failed: %v", msg.Action, msg.Err), true)
		}
		m.refresh()

	case tea.KeyMsg:
		switch {
		case m.showPicker:
			return m, m.updatePicker(msg)
		case m.session.IsInInsertMode():
			return m, m.updateInsert(msg)
		default:
			return m, m.updateNormal(msg)
		}
	}

	return m, nil
}

func (m *connectModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.showPicker {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.picker.View())
	}

	mode := m.session.InputMode()
	parts := []string{
		styles.ContentBorderStyle.Render(m.terminal.View()),
	}
	if m.help.ShowAll {
		parts = append(parts, m.help.View(m.keys))
	}
	parts = append(parts,
		m.input.View(mode == models.InputModeInsert),
		m.statusBar.Render(mode.String(), m.input.Mode().String(), time.Now().Format("15:04:05")),
	)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
