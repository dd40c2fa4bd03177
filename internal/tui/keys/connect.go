package keys

import "github.com/charmbracelet/bubbles/key"

// DeviceKeys act on the selected device
type DeviceKeys struct {
	ToggleDTR key.Binding
	Mute      key.Binding
	Reconnect key.Binding
	Devices   key.Binding
	NewDevice key.Binding
}

func NewDeviceKeys() DeviceKeys {
	return DeviceKeys{
		ToggleDTR: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle DTR"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reconnect"),
		),
		Devices: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "devices"),
		),
		NewDevice: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new device"),
		),
	}
}

// ConnectKeys are the bindings of the connect terminal. Insert mode only
// matches InputKeys.
type ConnectKeys struct {
	GlobalKeys
	InputKeys
	LogKeys
	DeviceKeys
}

func NewConnectKeys() ConnectKeys {
	return ConnectKeys{
		GlobalKeys: NewGlobalKeys(),
		InputKeys:  NewInputKeys(),
		LogKeys:    NewLogKeys(),
		DeviceKeys: NewDeviceKeys(),
	}
}

// NormalMode lists the bindings matched while browsing the log
func (k ConnectKeys) NormalMode() []key.Binding {
	return []key.Binding{
		k.Quit, k.Help, k.InsertMode, k.ToggleSendMode,
		k.Clear, k.ToggleHex, k.ToggleASCII, k.Up, k.Down, k.GotoTop, k.GotoBottom,
		k.ToggleDTR, k.Mute, k.Reconnect, k.Devices, k.NewDevice,
	}
}

func (k ConnectKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.InsertMode, k.Reconnect, k.Mute, k.Devices, k.Quit}
}

func (k ConnectKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.InsertMode, k.Escape, k.Enter, k.ToggleSendMode},
		{k.ToggleDTR, k.Mute, k.Reconnect, k.Devices, k.NewDevice},
		{k.Clear, k.ToggleHex, k.ToggleASCII},
		{k.GotoTop, k.GotoBottom, k.Up, k.Down},
		{k.Help, k.Quit},
	}
}
