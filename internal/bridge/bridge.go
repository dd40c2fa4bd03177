// Package bridge serves a local serial port over a websocket, speaking the
// same framing as the wsserial client: binary frames carry serial data and
// text frames carry "baud:<N>" and "dtr:<0|1>" commands.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	wsserial "github.com/allbin/go-wsserial"
)

const (
	// DefaultBaudRate is used to open the port before the client sends its own
	DefaultBaudRate = 115200

	readTimeout    = 100 * time.Millisecond
	closeWriteWait = time.Second
	readBufferSize = 4096
)

var errClientClosed = errors.New("client closed the connection")

// Port is the serial side of a session. go.bug.st/serial ports satisfy it.
type Port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetDTR(dtr bool) error
}

// Opener opens device with the given mode
type Opener func(device string, mode *serial.Mode) (Port, error)

// OpenSerial opens a real serial device. Reads time out periodically so a
// session can notice cancellation.
func OpenSerial(device string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %q: %w", device, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	_ = p.ResetInputBuffer()
	_ = p.ResetOutputBuffer()
	return p, nil
}

// Mode returns 8N1 at baud
func Mode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Config configures a Bridge
type Config struct {
	Device   string
	BaudRate int    // initial rate, DefaultBaudRate if zero
	Open     Opener // OpenSerial if nil
	Logger   logrus.FieldLogger
	Metrics  *wsserial.Metrics // optional
}

// Bridge is an http.Handler that upgrades a request to a websocket and
// connects it to the serial device. One client is served at a time.
type Bridge struct {
	cfg      Config
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	active   atomic.Bool
}

// New creates a bridge for cfg.Device
func New(cfg Config) (*Bridge, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("%w: no serial device", wsserial.ErrInvalidConfig)
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.BaudRate < 0 {
		return nil, fmt.Errorf("%w: %d", wsserial.ErrInvalidBaudRate, cfg.BaudRate)
	}
	if cfg.Open == nil {
		cfg.Open = OpenSerial
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Bridge{
		cfg: cfg,
		log: cfg.Logger.WithField("device", cfg.Device),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: readBufferSize,
			// The client is a CLI, not a browser
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

// Busy reports whether a client is connected
func (b *Bridge) Busy() bool {
	return b.active.Load()
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := b.log.WithField("remote", r.RemoteAddr)

	if !b.active.CompareAndSwap(false, true) {
		log.Warn("rejecting client, device is in use")
		b.dropped(wsserial.DropBusy)
		http.Error(w, "device is in use", http.StatusConflict)
		return
	}
	defer b.active.Store(false)

	port, err := b.cfg.Open(b.cfg.Device, Mode(b.cfg.BaudRate))
	b.connected(err)
	if err != nil {
		log.WithError(err).Error("failed to open device")
		http.Error(w, "failed to open device", http.StatusServiceUnavailable)
		return
	}
	defer port.Close()

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer ws.Close()

	log.Info("client connected")
	s := &session{bridge: b, log: log, ws: ws, port: port}
	if err := s.run(); err != nil {
		log.WithError(err).Warn("session ended")
		return
	}
	log.Info("client disconnected")
}

func (b *Bridge) connected(err error) {
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.Connected(err)
	}
}

func (b *Bridge) dropped(reason string) {
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.Dropped(reason)
	}
}

func (b *Bridge) sent(t wsserial.FrameType) {
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.Sent(t)
	}
}

func (b *Bridge) received(t wsserial.FrameType) {
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.Received(t)
	}
}

// session pumps one client connection
type session struct {
	bridge *Bridge
	log    logrus.FieldLogger
	ws     *websocket.Conn
	wmu    sync.Mutex
	port   Port
}

// run returns nil when the client closed the connection
func (s *session) run() error {
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error { return s.serialToSocket(ctx) })
	g.Go(func() error { return s.socketToSerial() })
	g.Go(func() error {
		<-ctx.Done()
		if cause := context.Cause(ctx); !errors.Is(cause, errClientClosed) {
			s.closeSocket(websocket.CloseInternalServerErr, "serial port error")
		}
		// Unblocks whichever pump is still running
		s.port.Close()
		s.ws.Close()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, errClientClosed) {
		return nil
	}
	return err
}

func (s *session) serialToSocket(ctx context.Context) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.port.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			continue
		}

		if err := s.write(websocket.BinaryMessage, buf[:n]); err != nil {
			return fmt.Errorf("websocket write: %w", err)
		}
		s.bridge.sent(wsserial.FrameBinary)
	}
}

func (s *session) socketToSerial() error {
	for {
		mt, payload, err := s.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				s.log.WithFields(logrus.Fields{
					"code":   ce.Code,
					"reason": ce.Text,
				}).Debug("close received")
				return errClientClosed
			}
			return fmt.Errorf("websocket read: %w", err)
		}

		f := wsserial.Frame{Type: wsserial.FrameType(mt), Payload: payload}
		s.bridge.received(f.Type)

		switch f.Type {
		case wsserial.FrameBinary:
			if _, err := s.port.Write(payload); err != nil {
				return fmt.Errorf("serial write: %w", err)
			}
		case wsserial.FrameText:
			s.apply(string(payload))
		}
	}
}

// apply runs a control command. Bad commands are logged and skipped.
func (s *session) apply(text string) {
	cmd, err := wsserial.ParseCommand(text)
	if err != nil {
		s.log.WithError(err).Warn("ignoring command")
		s.bridge.dropped(wsserial.DropBadFrame)
		return
	}

	switch cmd.Kind {
	case wsserial.CommandBaud:
		if err := s.port.SetMode(Mode(cmd.Baud)); err != nil {
			s.log.WithError(err).WithField("baud", cmd.Baud).Warn("failed to set baud rate")
			return
		}
		s.log.WithField("baud", cmd.Baud).Info("baud rate set")
	case wsserial.CommandDTR:
		if err := s.port.SetDTR(cmd.DTR); err != nil {
			s.log.WithError(err).Warn("failed to set DTR")
			return
		}
		s.log.WithField("dtr", cmd.DTR).Info("DTR set")
	}
}

func (s *session) write(mt int, payload []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.ws.WriteMessage(mt, payload)
}

func (s *session) closeSocket(code int, reason string) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
}
