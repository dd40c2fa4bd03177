package components

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"

	wsserial "github.com/allbin/go-wsserial"
	"github.com/allbin/go-wsserial/internal/tui/styles"
)

const (
	columnEndpoint = "endpoint"
	columnName     = "name"
)

// DevicePicker lists known devices and, when prompted, takes a new endpoint
type DevicePicker struct {
	table     table.Model
	prompt    textinput.Model
	prompting bool
	count     int
	current   string
}

func NewDevicePicker() *DevicePicker {
	prompt := textinput.New()
	prompt.Placeholder = "hostname or IP address"
	prompt.CharLimit = 253
	prompt.Prompt = "Endpoint: "

	return &DevicePicker{
		table:  newDeviceTable(nil, ""),
		prompt: prompt,
	}
}

func newDeviceTable(devices []wsserial.DeviceRecord, current string) table.Model {
	rows := make([]table.Row, 0, len(devices))
	for _, d := range devices {
		row := table.NewRow(table.RowData{
			columnEndpoint: d.Endpoint,
			columnName:     d.DisplayName,
		})
		if d.Endpoint == current {
			row = row.WithStyle(lipgloss.NewStyle().Foreground(styles.Green))
		}
		rows = append(rows, row)
	}

	return table.New([]table.Column{
		table.NewColumn(columnEndpoint, "Endpoint", 28),
		table.NewColumn(columnName, "Name", 24),
	}).
		WithRows(rows).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(styles.Mauve)).
		HighlightStyle(lipgloss.NewStyle().Foreground(styles.Base).Background(styles.Blue)).
		WithBaseStyle(lipgloss.NewStyle().BorderForeground(styles.Surface1).Align(lipgloss.Left)).
		WithPageSize(10).
		Focused(true)
}

// SetDevices refreshes the list, marking the current device
func (p *DevicePicker) SetDevices(devices []wsserial.DeviceRecord, current string) {
	p.table = newDeviceTable(devices, current)
	p.count = len(devices)
	p.current = current
}

func (p *DevicePicker) Empty() bool {
	return p.count == 0
}

// Selected returns the highlighted endpoint
func (p *DevicePicker) Selected() (string, bool) {
	if p.count == 0 {
		return "", false
	}
	endpoint, ok := p.table.HighlightedRow().Data[columnEndpoint].(string)
	return endpoint, ok
}

// Prompt switches to endpoint entry
func (p *DevicePicker) Prompt() tea.Cmd {
	p.prompting = true
	p.prompt.SetValue("")
	return p.prompt.Focus()
}

func (p *DevicePicker) Prompting() bool {
	return p.prompting
}

// Entered ends endpoint entry and returns what was typed
func (p *DevicePicker) Entered() string {
	p.prompting = false
	p.prompt.Blur()
	return p.prompt.Value()
}

func (p *DevicePicker) CancelPrompt() {
	p.prompting = false
	p.prompt.Blur()
}

func (p *DevicePicker) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if p.prompting {
		p.prompt, cmd = p.prompt.Update(msg)
		return cmd
	}
	p.table, cmd = p.table.Update(msg)
	return cmd
}

func (p *DevicePicker) View() string {
	title := styles.TitleStyle.Render("Devices")

	var body string
	switch {
	case p.prompting:
		body = styles.InputStyle.BorderForeground(styles.Green).Render(p.prompt.View())
	case p.count == 0:
		body = styles.HintStyle.Render("No known devices yet.")
	default:
		body = p.table.View()
	}

	hint := styles.HintStyle.Render("enter select • n new device • esc back • q quit")
	if p.prompting {
		hint = styles.HintStyle.Render("enter add and connect • esc cancel")
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, body, hint)
}
