// Package models holds the state shared by the terminal UI and the manager
// calls it makes. Manager methods emit events synchronously and the event
// handler forwards them into the program, so they are only ever called from
// tea.Cmd goroutines, never from Update.
package models

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	wsserial "github.com/allbin/go-wsserial"
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	if m == InputModeInsert {
		return "INSERT"
	}
	return "NORMAL"
}

// EventMsg carries a manager event into the program
type EventMsg struct {
	Event wsserial.Event
}

// WriteResultMsg reports the outcome of the write started for TX line Seq
type WriteResultMsg struct {
	Seq int
	Err error
}

// ActionMsg reports a failed manager call other than a write
type ActionMsg struct {
	Action string
	Err    error
}

// Session is the UI side of one manager
type Session struct {
	manager   *wsserial.Manager
	ctx       context.Context
	cancel    context.CancelFunc
	inputMode InputMode
	dtr       bool
	seq       int
}

func NewSession(m *wsserial.Manager) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{manager: m, ctx: ctx, cancel: cancel}
}

// Forward subscribes send to every manager event
func (s *Session) Forward(send func(tea.Msg)) *wsserial.Subscription {
	return s.manager.Subscribe(func(e wsserial.Event) {
		send(EventMsg{Event: e})
	})
}

func (s *Session) Manager() *wsserial.Manager {
	return s.manager
}

func (s *Session) Status() wsserial.Status {
	return s.manager.Status()
}

func (s *Session) InputMode() InputMode {
	return s.inputMode
}

func (s *Session) SetInputMode(mode InputMode) {
	s.inputMode = mode
}

func (s *Session) IsInInsertMode() bool {
	return s.inputMode == InputModeInsert
}

func (s *Session) DTR() bool {
	return s.dtr
}

// NextSeq numbers an outbound line
func (s *Session) NextSeq() int {
	s.seq++
	return s.seq
}

func (s *Session) action(name string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := s.ctx
	return func() tea.Msg {
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return ActionMsg{Action: name, Err: err}
		}
		return nil
	}
}

// Write sends raw bytes unless text is set, in which case they are encoded
func (s *Session) Write(seq int, data []byte, text bool) tea.Cmd {
	ctx, m := s.ctx, s.manager
	return func() tea.Msg {
		var err error
		if text {
			err = m.WriteString(ctx, string(data))
		} else {
			err = m.Write(ctx, data)
		}
		return WriteResultMsg{Seq: seq, Err: err}
	}
}

func (s *Session) Select(endpoint string) tea.Cmd {
	return s.action("select device", func(ctx context.Context) error {
		return s.manager.SelectDevice(ctx, endpoint)
	})
}

func (s *Session) Register(endpoint string) tea.Cmd {
	return s.action("add device", func(ctx context.Context) error {
		return s.manager.RegisterDevice(ctx, endpoint)
	})
}

func (s *Session) RequestDevice() tea.Cmd {
	return func() tea.Msg {
		s.manager.RequestDevice()
		return nil
	}
}

func (s *Session) Reconnect() tea.Cmd {
	return s.action("connect", s.manager.Connect)
}

// ToggleDTR flips the last DTR state sent
func (s *Session) ToggleDTR() tea.Cmd {
	s.dtr = !s.dtr
	state := s.dtr
	return s.action("set DTR", func(context.Context) error {
		return s.manager.SetSignals(state)
	})
}

func (s *Session) ToggleMute() tea.Cmd {
	muted := !s.manager.Muted()
	return func() tea.Msg {
		s.manager.SetMute(muted)
		return nil
	}
}

func (s *Session) SetBaud(rate int) tea.Cmd {
	return s.action("set baud rate", func(context.Context) error {
		_, err := s.manager.SetBaud(rate)
		return err
	})
}

// Close cancels pending calls and disconnects
func (s *Session) Close(ctx context.Context) error {
	s.cancel()
	return s.manager.Close(ctx)
}
