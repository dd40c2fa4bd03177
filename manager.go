package wsserial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// State is the connection state of the current device
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot of the manager
type Status struct {
	Endpoint string // "" when no device is selected
	State    State
	Baud     int
	LastBaud int
	Muted    bool
}

// entry is a cached channel and the connection state the manager tracks for it
type entry struct {
	ch      *Channel
	state   State
	closing bool // Disconnect in progress; the close callback stays quiet

	// attempt numbers connection attempts. Only the latest one may move the
	// entry out of Connecting.
	attempt int
	// dialing is closed when the running attempt has finished, including
	// closing a socket it no longer wants.
	dialing chan struct{}
}

// Manager owns the current device selection, its websocket channel and the
// write path to it. Channels are built once per endpoint and reused.
//
// SelectDevice and Disconnect run one at a time. Events are delivered
// synchronously from whichever goroutine caused them, which is either the
// caller or a channel read loop. The state lock is never held while they run.
type Manager struct {
	cfg      Config
	log      logrus.FieldLogger
	store    Store
	codec    textCodec
	metrics  *Metrics
	registry *Registry
	events   Emitter
	gate     WriteGate

	lifecycle sync.Mutex // serializes SelectDevice and Disconnect

	mu       sync.Mutex
	channels map[string]*entry
	current  *entry
	baud     int
	lastBaud int
	muted    bool
}

// New creates a manager. The device list and baud rate are restored from the
// configured store.
func New(opts ...Option) (*Manager, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	codec, err := newTextCodec(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Registerer, "client")
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	m := &Manager{
		cfg:      cfg,
		log:      cfg.Logger,
		store:    cfg.Store,
		codec:    codec,
		metrics:  metrics,
		channels: make(map[string]*entry),
	}
	m.registry = NewRegistry(cfg.Store, m.validate, cfg.Logger)
	m.baud = m.restoreBaud()
	m.lastBaud = m.baud
	return m, nil
}

func (m *Manager) restoreBaud() int {
	data, err := m.store.Load(KeyBaudRate)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.WithError(err).Warn("baud rate unavailable, using default")
		}
		return m.cfg.BaudRate
	}

	var rate int
	if err := json.Unmarshal(data, &rate); err != nil || rate <= 0 {
		m.log.WithField("value", string(data)).Warn("stored baud rate unusable, using default")
		return m.cfg.BaudRate
	}
	return rate
}

// Subscribe registers an event handler, optionally limited to some kinds.
//
// Handlers for EventData, EventMessage and peer-initiated EventDisconnected
// run on the connection's read loop, and Disconnect waits for that loop to
// observe the close acknowledgement. Calling Disconnect, SelectDevice or
// Close from a handler therefore deadlocks; hand the call to another
// goroutine instead.
func (m *Manager) Subscribe(fn func(Event), kinds ...EventKind) *Subscription {
	return m.events.Subscribe(fn, kinds...)
}

// Metrics returns the manager's collectors
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Devices returns the known devices in insertion order
func (m *Manager) Devices() []DeviceRecord {
	return m.registry.List()
}

// CurrentDevice returns the selected endpoint, or "" if none
func (m *Manager) CurrentDevice() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.ch.Endpoint()
}

// State returns the connection state of the current device
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Disconnected
	}
	return m.current.state
}

// Baud returns the current baud rate
func (m *Manager) Baud() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baud
}

// LastBaud returns the baud rate in effect before the most recent SetBaud
func (m *Manager) LastBaud() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBaud
}

// Muted reports whether outbound writes and message events are suppressed
func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// Status returns a consistent snapshot of the manager
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	s := Status{
		Baud:     m.baud,
		LastBaud: m.lastBaud,
		Muted:    m.muted,
	}
	if m.current != nil {
		s.Endpoint = m.current.ch.Endpoint()
		s.State = m.current.state
	}
	return s
}

func (m *Manager) emitState() {
	m.mu.Lock()
	s := m.statusLocked()
	m.mu.Unlock()
	m.events.emit(Event{Kind: EventStateChanged, Endpoint: s.Endpoint, State: s.State})
}

// channel returns the cached channel for endpoint, building it on first use.
// A construction failure is reported as an error prompt.
func (m *Manager) channel(endpoint string) (*entry, error) {
	m.mu.Lock()
	e, ok := m.channels[endpoint]
	m.mu.Unlock()
	if ok {
		return e, nil
	}

	ch, err := NewChannel(endpoint, m.cfg)
	if err != nil {
		m.log.WithError(err).WithField("endpoint", endpoint).Error("failed to create channel")
		m.events.emit(Event{Kind: EventErrorPrompt, Endpoint: endpoint, Text: err.Error()})
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.channels[endpoint]; ok {
		return existing, nil
	}
	e = &entry{ch: ch}
	ch.OnFrame(func(f Frame) { m.handleFrame(e, f) })
	ch.OnClose(func(info CloseInfo) { m.handleClose(e, info) })
	m.channels[endpoint] = e
	return e, nil
}

func (m *Manager) validate(endpoint string) error {
	_, err := m.channel(endpoint)
	return err
}

// RequestDevice asks the UI to prompt for a device name
func (m *Manager) RequestDevice() {
	m.log.Info("device prompt requested")
	m.events.emit(Event{Kind: EventDevicePrompt})
}

// AddDevice validates endpoint and stores it without selecting it
func (m *Manager) AddDevice(endpoint, displayName string) error {
	if err := m.registry.Validate(endpoint); err != nil {
		return err
	}
	return m.registry.Add(endpoint, displayName)
}

// RegisterDevice adds endpoint to the device list and selects it. An endpoint
// that cannot be used is reported as an error prompt and not stored. An
// endpoint that is already known is ignored.
func (m *Manager) RegisterDevice(ctx context.Context, endpoint string) error {
	err := m.AddDevice(endpoint, endpoint)
	switch {
	case errors.Is(err, ErrDuplicateDevice):
		m.log.WithField("endpoint", endpoint).Debug("device already registered")
		return nil
	case err != nil:
		return err
	}
	m.log.WithField("endpoint", endpoint).Info("device registered")
	return m.SelectDevice(ctx, endpoint)
}

// SelectDevice makes endpoint the current device and connects to it. A
// connected previous device is disconnected first, and its close handshake
// completes before anything is sent to the new one. Selecting the current
// device again does nothing.
func (m *Manager) SelectDevice(ctx context.Context, endpoint string) error {
	m.lifecycle.Lock()
	e, err := m.selectLocked(ctx, endpoint)
	m.lifecycle.Unlock()
	if err != nil || e == nil {
		return err
	}
	return m.connect(ctx, e)
}

// selectLocked swaps the current device. It returns nil when endpoint is
// already selected.
func (m *Manager) selectLocked(ctx context.Context, endpoint string) (*entry, error) {
	m.mu.Lock()
	prev := m.current
	if prev != nil && prev.ch.Endpoint() == endpoint {
		m.mu.Unlock()
		return nil, nil
	}
	prevConnected := prev != nil && prev.state == Connected
	m.mu.Unlock()

	if prevConnected {
		if err := m.disconnectLocked(ctx); err != nil {
			m.log.WithError(err).Warn("previous device did not close cleanly")
		}
	}

	e, err := m.channel(endpoint)
	if err != nil {
		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()
		m.events.emit(Event{Kind: EventDeviceSelected})
		m.emitState()
		return nil, err
	}

	m.mu.Lock()
	m.current = e
	m.mu.Unlock()

	m.log.WithField("endpoint", endpoint).Info("device selected")
	m.events.emit(Event{Kind: EventDeviceSelected, Endpoint: endpoint})
	return e, nil
}

// Connect opens the current device's channel and sends the baud rate as the
// first frame. A failed handshake leaves the device disconnected. If an
// abandoned handshake to the same device is still running, Connect waits for
// it to finish first.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	e := m.current
	m.mu.Unlock()
	if e == nil {
		m.log.Info("connect requested but no device is selected")
		return ErrNoDevice
	}
	return m.connect(ctx, e)
}

func (m *Manager) connect(ctx context.Context, e *entry) error {
	for {
		m.mu.Lock()
		if m.current != e || e.state != Disconnected {
			// Superseded before dialing, or already on its way
			m.mu.Unlock()
			return nil
		}
		if wait := e.dialing; wait != nil {
			m.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		e.state = Connecting
		e.attempt++
		attempt := e.attempt
		done := make(chan struct{})
		e.dialing = done
		m.mu.Unlock()

		err := m.dial(ctx, e, attempt)

		m.mu.Lock()
		if e.dialing == done {
			e.dialing = nil
		}
		m.mu.Unlock()
		close(done)
		return err
	}
}

// latest reports whether attempt still owns e's Connecting state
func (m *Manager) latest(e *entry, attempt int) bool {
	return m.current == e && e.attempt == attempt && e.state == Connecting
}

// release returns an attempt that lost its claim on e. The entry drops back
// to Disconnected unless a newer attempt or a Disconnect already moved it.
func (m *Manager) release(e *entry, attempt int) {
	m.mu.Lock()
	if e.attempt == attempt && e.state == Connecting {
		e.state = Disconnected
	}
	m.mu.Unlock()
}

func (m *Manager) dial(ctx context.Context, e *entry, attempt int) error {
	endpoint := e.ch.Endpoint()
	log := m.log.WithField("endpoint", endpoint)
	m.emitState()
	log.Info("connecting")

	sock, err := e.ch.open(ctx)
	m.metrics.Connected(err)
	if err != nil {
		m.mu.Lock()
		mine := m.latest(e, attempt)
		m.mu.Unlock()
		m.release(e, attempt)
		log.WithError(err).Warn("connection failed")
		if mine {
			m.emitState()
		}
		return err
	}

	m.mu.Lock()
	if !m.latest(e, attempt) {
		// Superseded or disconnected while the handshake was running
		m.mu.Unlock()
		log.Info("handshake finished after the device was abandoned, closing")
		closeErr := e.ch.closeSocket(ctx, sock, websocket.CloseNormalClosure, "")
		m.release(e, attempt)
		return closeErr
	}
	baud := m.baud
	m.mu.Unlock()

	if err := m.send(e, BaudCommand(baud)); err != nil {
		log.WithError(err).Warn("failed to send baud rate")
	}

	m.mu.Lock()
	if !m.latest(e, attempt) {
		m.mu.Unlock()
		log.Info("device abandoned during setup, closing")
		closeErr := e.ch.closeSocket(ctx, sock, websocket.CloseNormalClosure, "")
		m.release(e, attempt)
		return closeErr
	}
	if !e.ch.owns(sock) {
		// The socket dropped before it was announced
		e.state = Disconnected
		m.mu.Unlock()
		log.Warn("connection lost during setup")
		m.emitState()
		return nil
	}
	e.state = Connected
	m.mu.Unlock()

	log.WithField("baud", baud).Info("connected")
	m.events.emit(Event{Kind: EventConnected, Endpoint: endpoint})
	m.emitState()
	return nil
}

// Disconnect closes the current device's channel and returns once the close
// handshake has completed or ctx is done. The disconnected event is emitted
// exactly once per connection, after the close. A handshake still in
// progress is abandoned; its socket is closed when it completes and no
// disconnected event is emitted for it. A device that is already
// disconnected is left alone.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.disconnectLocked(ctx)
}

func (m *Manager) disconnectLocked(ctx context.Context) error {
	m.mu.Lock()
	e := m.current
	if e == nil || e.state == Disconnected {
		m.mu.Unlock()
		return nil
	}
	endpoint := e.ch.Endpoint()
	if e.state == Connecting {
		e.state = Disconnected
		m.mu.Unlock()
		m.log.WithField("endpoint", endpoint).Info("abandoning connection attempt")
		m.emitState()
		return nil
	}
	e.closing = true
	m.mu.Unlock()

	m.log.WithField("endpoint", endpoint).Info("disconnecting")
	err := e.ch.Close(ctx, websocket.CloseNormalClosure, "")

	m.mu.Lock()
	e.closing = false
	e.state = Disconnected
	m.mu.Unlock()

	m.events.emit(Event{Kind: EventDisconnected, Endpoint: endpoint})
	m.emitState()
	return err
}

// Close disconnects the current device
func (m *Manager) Close(ctx context.Context) error {
	return m.Disconnect(ctx)
}

// handleClose runs on a channel's read loop when its socket ends. Only an
// unexpected close of the current, connected device is reported.
func (m *Manager) handleClose(e *entry, info CloseInfo) {
	m.mu.Lock()
	if m.current != e || e.closing || e.state != Connected {
		m.mu.Unlock()
		return
	}
	e.state = Disconnected
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"endpoint": e.ch.Endpoint(),
		"code":     info.Code,
		"reason":   info.Reason,
	}).Info("disconnected by peer")
	m.events.emit(Event{Kind: EventDisconnected, Endpoint: e.ch.Endpoint()})
	m.emitState()
}

// handleFrame runs on a channel's read loop for every inbound frame
func (m *Manager) handleFrame(e *entry, f Frame) {
	kind, err := Classify(f)
	if err != nil {
		m.metrics.Dropped(DropBadFrame)
		m.log.WithError(err).Warn("dropping inbound frame")
		return
	}
	m.metrics.Received(f.Type)

	m.mu.Lock()
	current := m.current == e
	muted := m.muted
	m.mu.Unlock()

	endpoint := e.ch.Endpoint()
	if !current {
		m.log.WithField("endpoint", endpoint).Debug("dropping frame from inactive device")
		return
	}

	switch kind {
	case InboundData:
		data := append([]byte(nil), f.Payload...)
		m.events.emit(Event{Kind: EventData, Endpoint: endpoint, Data: data})
		if !muted {
			m.events.emit(Event{Kind: EventMessage, Endpoint: endpoint, Text: m.codec.decode(data)})
		}
	case InboundMessage:
		m.log.WithField("endpoint", endpoint).Debugf("recv text %q", f.Payload)
		if !muted {
			m.events.emit(Event{Kind: EventMessage, Endpoint: endpoint, Text: string(f.Payload)})
		}
	}
}

func (m *Manager) send(e *entry, f Frame) error {
	if err := e.ch.Send(f); err != nil {
		return err
	}
	if e.ch.Connected() {
		m.metrics.Sent(f.Type)
	}
	return nil
}

// SetBeforeWrite registers a hook that the next write awaits before it
// transmits. An unconsumed hook is replaced.
func (m *Manager) SetBeforeWrite(hook Hook) {
	m.gate.SetBeforeWrite(hook)
}

// WriteFrame sends a data frame to the current device through the write
// gate. Only binary frames are accepted. A write that arrives while another
// is in flight is dropped and reported as ErrWriteDropped. Nothing is sent
// while muted.
func (m *Manager) WriteFrame(ctx context.Context, f Frame) error {
	if m.Muted() {
		m.metrics.Dropped(DropMuted)
		return ErrMuted
	}

	start := time.Now()
	err := m.gate.Do(ctx, func() error {
		if err := CheckData(f); err != nil {
			return err
		}
		m.mu.Lock()
		e := m.current
		m.mu.Unlock()
		if e == nil {
			return ErrNoDevice
		}
		return m.send(e, f)
	})

	switch {
	case err == nil:
		m.metrics.WriteDuration.Observe(time.Since(start).Seconds())
	case errors.Is(err, ErrWriteDropped):
		m.metrics.Dropped(DropBusy)
		m.log.Debug("write dropped, another write is in flight")
	case errors.Is(err, ErrNotBinary):
		m.metrics.Dropped(DropNotBinary)
		m.log.WithError(err).Warn("write dropped")
	case errors.Is(err, ErrNoDevice):
		m.metrics.Dropped(DropNoDevice)
		m.log.Debug("write dropped, no device selected")
	default:
		m.metrics.Dropped(DropHook)
		m.log.WithError(err).Warn("write failed")
	}
	return err
}

// Write sends p as serial data
func (m *Manager) Write(ctx context.Context, p []byte) error {
	return m.WriteFrame(ctx, BinaryFrame(p))
}

// WriteString encodes s with the configured text encoding and sends it as
// serial data
func (m *Manager) WriteString(ctx context.Context, s string) error {
	p, err := m.codec.encode(s)
	if err != nil {
		return fmt.Errorf("failed to encode text: %w", err)
	}
	return m.WriteFrame(ctx, BinaryFrame(p))
}

// SetMute enables or disables suppression of outbound writes and message
// events. Data events are still delivered while muted.
func (m *Manager) SetMute(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
	m.log.WithField("muted", muted).Info("mute changed")
	m.emitState()
}

// SetBaud changes the baud rate, sends it to the current device if there is
// one and persists it. It returns the new rate.
func (m *Manager) SetBaud(rate int) (int, error) {
	if rate <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBaudRate, rate)
	}

	m.mu.Lock()
	m.lastBaud = m.baud
	m.baud = rate
	e := m.current
	m.mu.Unlock()

	if e != nil {
		if err := m.send(e, BaudCommand(rate)); err != nil {
			m.log.WithError(err).Warn("failed to send baud rate")
		}
	}

	data, _ := json.Marshal(rate)
	if err := m.store.Save(KeyBaudRate, data); err != nil {
		m.log.WithError(err).Warn("failed to persist baud rate")
		m.emitState()
		return rate, fmt.Errorf("failed to persist baud rate: %w", err)
	}

	m.log.WithField("baud", rate).Info("baud rate changed")
	m.emitState()
	return rate, nil
}

// SetSignals forwards a DTR change to the current device. It accepts true,
// false, "on" and "off"; anything else is ignored.
func (m *Manager) SetSignals(signal any) error {
	m.mu.Lock()
	e := m.current
	m.mu.Unlock()
	if e == nil {
		m.log.Debug("signal change ignored, no device selected")
		return ErrNoDevice
	}

	f, ok := SignalCommand(signal)
	if !ok {
		m.log.WithField("signal", signal).Warn("ignoring unrecognized signal value")
		return nil
	}
	m.log.WithField("signal", signal).Info("setting signals")
	return m.send(e, f)
}
