package wsserial

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// peerFrame is a frame received by the test peer, tagged with the endpoint
// host the client dialed
type peerFrame struct {
	Host  string
	Frame Frame
}

// peer is a websocket-to-serial proxy stand-in that records everything
type peer struct {
	srv *httptest.Server

	mu     sync.Mutex
	log    []string // "open <host>" / "close <host>" in arrival order
	frames []peerFrame
	conns  map[string]*websocket.Conn

	// gates delay the handshake for a host until the channel is closed
	gates map[string]chan struct{}
	// reject makes the handshake fail
	reject bool
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	p := &peer{
		conns: make(map[string]*websocket.Conn),
		gates: make(map[string]chan struct{}),
	}
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *peer) serve(w http.ResponseWriter, r *http.Request) {
	host, _, _ := strings.Cut(r.Host, ":")
	p.record("open " + host)

	p.mu.Lock()
	gate, reject := p.gates[host], p.reject
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if reject {
		http.Error(w, "no device", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	ws.SetCloseHandler(func(code int, text string) error {
		p.record("close " + host)
		msg := websocket.FormatCloseMessage(code, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return nil
	})

	p.mu.Lock()
	p.conns[host] = ws
	p.mu.Unlock()

	for {
		mt, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.frames = append(p.frames, peerFrame{Host: host, Frame: Frame{Type: FrameType(mt), Payload: payload}})
		p.mu.Unlock()
	}
}

func (p *peer) setReject(reject bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reject = reject
}

// hold delays the next handshakes from host until the returned func is called
func (p *peer) hold(host string) (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.gates[host] = gate
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.gates, host)
			p.mu.Unlock()
			close(gate)
		})
	}
}

func (p *peer) record(entry string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = append(p.log, entry)
}

func (p *peer) history() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...)
}

func (p *peer) received() []peerFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]peerFrame(nil), p.frames...)
}

func (p *peer) texts(host string) []string {
	var out []string
	for _, f := range p.received() {
		if f.Host == host && f.Frame.Type == FrameText {
			out = append(out, string(f.Frame.Payload))
		}
	}
	return out
}

func (p *peer) binaries(host string) [][]byte {
	var out [][]byte
	for _, f := range p.received() {
		if f.Host == host && f.Frame.Type == FrameBinary {
			out = append(out, f.Frame.Payload)
		}
	}
	return out
}

func (p *peer) conn(t *testing.T, host string) *websocket.Conn {
	t.Helper()
	var ws *websocket.Conn
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		ws = p.conns[host]
		return ws != nil
	}, 2*time.Second, 5*time.Millisecond)
	return ws
}

// send pushes a frame from the device side to the client connected as host
func (p *peer) send(t *testing.T, host string, f Frame) {
	t.Helper()
	require.NoError(t, p.conn(t, host).WriteMessage(int(f.Type), f.Payload))
}

// hangUp starts a server-initiated close towards host
func (p *peer) hangUp(t *testing.T, host string, code int) {
	t.Helper()
	msg := websocket.FormatCloseMessage(code, "bye")
	require.NoError(t, p.conn(t, host).WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
}

// dialer routes every endpoint to the peer regardless of host name, so the
// Host header still carries the endpoint
func (p *peer) dialer() *websocket.Dialer {
	addr := p.srv.Listener.Addr().String()
	return &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
}

func (p *peer) config(t *testing.T, log logrus.FieldLogger) Config {
	t.Helper()
	cfg := DefaultConfig()
	require.NoError(t, WithScheme("ws")(&cfg))
	require.NoError(t, WithDialer(p.dialer())(&cfg))
	require.NoError(t, WithLogger(log)(&cfg))
	return cfg
}

func newTestLogger() (*logrus.Logger, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

// hasLog reports whether any captured entry contains substr
func hasLog(hook *test.Hook, substr string) bool {
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
