package wsserial

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// closeWriteWait bounds how long writing the close frame itself may take
const closeWriteWait = 5 * time.Second

// CloseInfo describes how a connection ended
type CloseInfo struct {
	Code   int
	Reason string
	Clean  bool
}

// Channel owns one websocket connection to one device endpoint. A Channel can
// be connected and closed repeatedly; each Connect opens a fresh socket.
type Channel struct {
	endpoint string
	url      string
	dialer   *websocket.Dialer
	log      logrus.FieldLogger
	trace    bool

	mu      sync.Mutex
	sock    *socket
	onFrame func(Frame)
	onClose func(CloseInfo)
}

// socket is a single open websocket and its read loop
type socket struct {
	ws   *websocket.Conn
	wmu  sync.Mutex // gorilla allows one concurrent writer
	done chan struct{}
}

// NewChannel builds a channel for endpoint. The endpoint must be a bare host
// name or IP; the scheme and port come from cfg.
func NewChannel(endpoint string, cfg Config) (*Channel, error) {
	target, err := targetURL(endpoint, cfg.Scheme, cfg.Port)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Channel{
		endpoint: endpoint,
		url:      target,
		dialer:   cfg.dialer(),
		log:      log.WithField("endpoint", endpoint),
		trace:    cfg.Trace,
	}, nil
}

// targetURL applies the "<scheme>://<endpoint>:<port>" rule. IPv6 literals
// must be bracketed, otherwise the port cannot be told apart from the address.
func targetURL(endpoint, scheme string, port int) (string, error) {
	if strings.Contains(endpoint, ":") && !strings.HasPrefix(endpoint, "[") {
		return "", &EndpointError{Endpoint: endpoint, Err: errors.New("IPv6 addresses must be enclosed in brackets")}
	}

	raw := fmt.Sprintf("%s://%s:%d", scheme, endpoint, port)
	u, err := url.Parse(raw)
	if err != nil {
		return "", &EndpointError{Endpoint: endpoint, Err: err}
	}

	if u.User != nil || u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.Port() != strconv.Itoa(port) {
		return "", &EndpointError{Endpoint: endpoint, Err: errors.New("endpoint must be a bare host")}
	}
	if !govalidator.IsHost(u.Hostname()) {
		return "", &EndpointError{Endpoint: endpoint, Err: fmt.Errorf("%q is not a host name or IP address", u.Hostname())}
	}

	return u.String(), nil
}

// Endpoint returns the endpoint name the channel was built for
func (c *Channel) Endpoint() string {
	return c.endpoint
}

// URL returns the websocket target URL
func (c *Channel) URL() string {
	return c.url
}

// OnFrame registers the inbound frame callback. It runs on the read loop.
func (c *Channel) OnFrame(fn func(Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = fn
}

// OnClose registers the closure callback. It runs on the read loop, for both
// local and remote closes, before Close returns.
func (c *Channel) OnClose(fn func(CloseInfo)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// Connected reports whether the socket is open
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock != nil
}

// Connect opens the websocket and returns once the handshake has completed.
// Connecting an already open channel is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	_, err := c.open(ctx)
	if errors.Is(err, errAlreadyOpen) {
		return nil
	}
	return err
}

// open dials a new socket and installs it. The returned socket belongs to
// the caller; errAlreadyOpen means another socket was installed first and
// nothing was dialed or the new one was discarded.
func (c *Channel) open(ctx context.Context) (*socket, error) {
	if c.Connected() {
		return nil, errAlreadyOpen
	}

	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, &HandshakeError{URL: c.url, Err: err}
	}

	s := &socket{ws: ws, done: make(chan struct{})}

	c.mu.Lock()
	if c.sock != nil {
		c.mu.Unlock()
		ws.Close()
		return nil, errAlreadyOpen
	}
	c.sock = s
	c.mu.Unlock()

	go c.readLoop(s)
	return s, nil
}

// owns reports whether s is the channel's open socket
func (c *Channel) owns(s *socket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return s != nil && c.sock == s
}

// Send transmits f if the socket is open and silently does nothing otherwise
func (c *Channel) Send(f Frame) error {
	c.mu.Lock()
	s := c.sock
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	if c.trace {
		c.log.Debugf("send %s hex %s", f.Type, hex.EncodeToString(f.Payload))
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.ws.WriteMessage(int(f.Type), f.Payload)
}

// Close sends a close frame and waits until the peer's acknowledgement has
// been observed. Connected reports false as soon as Close is called.
func (c *Channel) Close(ctx context.Context, code int, reason string) error {
	c.mu.Lock()
	s := c.sock
	c.sock = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return c.shutdown(ctx, s, code, reason)
}

// closeSocket closes s, which need not be the channel's current socket
// anymore. A newer socket installed after s is left alone.
func (c *Channel) closeSocket(ctx context.Context, s *socket, code int, reason string) error {
	if s == nil {
		return nil
	}
	c.mu.Lock()
	if c.sock == s {
		c.sock = nil
	}
	c.mu.Unlock()
	return c.shutdown(ctx, s, code, reason)
}

func (c *Channel) shutdown(ctx context.Context, s *socket, code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait)); err != nil {
		// Peer is already gone; tear the socket down so the read loop exits.
		c.log.WithError(err).Debug("close frame not written")
		s.ws.Close()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.ws.Close()
		<-s.done
		return ctx.Err()
	}
}

func (c *Channel) readLoop(s *socket) {
	defer close(s.done)

	for {
		mt, payload, err := s.ws.ReadMessage()
		if err != nil {
			info := closeInfoFrom(err)
			s.ws.Close()

			c.mu.Lock()
			if c.sock == s {
				c.sock = nil
			}
			handler := c.onClose
			c.mu.Unlock()

			c.log.WithFields(logrus.Fields{
				"code":   info.Code,
				"reason": info.Reason,
				"clean":  info.Clean,
			}).Info("termination observed")

			if handler != nil {
				handler(info)
			}
			return
		}

		f := Frame{Type: FrameType(mt), Payload: payload}
		if c.trace {
			c.log.Debugf("recv %s hex %s", f.Type, hex.EncodeToString(payload))
		}

		c.mu.Lock()
		handler := c.onFrame
		c.mu.Unlock()
		if handler != nil {
			handler(f)
		}
	}
}

func closeInfoFrom(err error) CloseInfo {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseInfo{
			Code:   ce.Code,
			Reason: ce.Text,
			Clean:  ce.Code != websocket.CloseAbnormalClosure,
		}
	}
	return CloseInfo{
		Code:   websocket.CloseAbnormalClosure,
		Reason: err.Error(),
	}
}
