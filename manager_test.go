package wsserial

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// recorder collects every event a manager publishes
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(m *Manager) *recorder {
	r := &recorder{}
	m.Subscribe(func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	})
	return r
}

func (r *recorder) all(kinds ...EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if len(kinds) == 0 || slices.Contains(kinds, e.Kind) {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count(kind EventKind, endpoint string) int {
	n := 0
	for _, e := range r.all(kind) {
		if e.Endpoint == endpoint {
			n++
		}
	}
	return n
}

func (r *recorder) messages() []string {
	var out []string
	for _, e := range r.all(EventMessage) {
		out = append(out, e.Text)
	}
	return out
}

type fixture struct {
	m    *Manager
	peer *peer
	hook *test.Hook
	ev   *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	p := newPeer(t)
	log, hook := newTestLogger()

	base := []Option{
		WithScheme("ws"),
		WithDialer(p.dialer()),
		WithLogger(log),
		WithRegisterer(prometheus.NewRegistry()),
	}
	m, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	return &fixture{m: m, peer: p, hook: hook, ev: record(m)}
}

func (f *fixture) connect(t *testing.T, endpoint string) {
	t.Helper()
	require.NoError(t, f.m.SelectDevice(context.Background(), endpoint))
	require.Equal(t, Connected, f.m.State())
	require.Eventually(t, func() bool {
		return len(f.peer.texts(endpoint)) > 0
	}, waitFor, 5*time.Millisecond, "baud frame never arrived")
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(WithEncoding("klingon"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithBaudRate(0))
	assert.ErrorIs(t, err, ErrInvalidBaudRate)
}

func TestRegisterDeviceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.RegisterDevice(ctx, "alpha.local"))
	require.NoError(t, f.m.RegisterDevice(ctx, "beta.local"))
	require.NoError(t, f.m.RegisterDevice(ctx, "alpha.local"))

	assert.Equal(t, []DeviceRecord{
		{Endpoint: "alpha.local", DisplayName: "alpha.local"},
		{Endpoint: "beta.local", DisplayName: "beta.local"},
	}, f.m.Devices())
	assert.Equal(t, "beta.local", f.m.CurrentDevice(), "a duplicate must not change the selection")
}

func TestRegisterDeviceRejectsBadEndpoint(t *testing.T) {
	f := newFixture(t)

	err := f.m.RegisterDevice(context.Background(), "not a host")
	require.ErrorIs(t, err, ErrInvalidEndpoint)

	assert.Empty(t, f.m.Devices())
	prompts := f.ev.all(EventErrorPrompt)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].Text, "not a host")
	assert.Empty(t, f.peer.history(), "nothing may be dialed")
}

func TestRequestDeviceOnlyPrompts(t *testing.T) {
	f := newFixture(t)
	f.m.RequestDevice()

	assert.Equal(t, []Event{{Kind: EventDevicePrompt}}, f.ev.all())
	assert.Equal(t, "", f.m.CurrentDevice())
}

func TestConnectSendsBaudFirst(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	assert.Equal(t, []string{"baud:115200"}, f.peer.texts("alpha.local"))
	assert.Equal(t, 1, f.ev.count(EventDeviceSelected, "alpha.local"))
	assert.Equal(t, 1, f.ev.count(EventConnected, "alpha.local"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Metrics().Connects.WithLabelValues("ok")))
}

func TestConnectUsesPersistedBaud(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(KeyBaudRate, []byte("57600")))

	f := newFixture(t, WithStore(store))
	assert.Equal(t, 57600, f.m.Baud())

	f.connect(t, "alpha.local")
	assert.Equal(t, []string{"baud:57600"}, f.peer.texts("alpha.local"))
}

func TestConnectWithoutDevice(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.m.Connect(context.Background()), ErrNoDevice)
	assert.True(t, hasLog(f.hook, "no device is selected"))
}

func TestConnectFailureRevertsToDisconnected(t *testing.T) {
	f := newFixture(t)
	f.peer.setReject(true)

	err := f.m.SelectDevice(context.Background(), "alpha.local")
	require.ErrorIs(t, err, ErrHandshake)

	assert.Equal(t, "alpha.local", f.m.CurrentDevice())
	assert.Equal(t, Disconnected, f.m.State())
	assert.Zero(t, f.ev.count(EventConnected, "alpha.local"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Metrics().Connects.WithLabelValues("failed")))

	// No retry happens on its own
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"open alpha.local"}, f.peer.history())
}

func TestSetBaudSendsControlFrame(t *testing.T) {
	store := NewMemoryStore()
	f := newFixture(t, WithStore(store))
	f.connect(t, "alpha.local")

	got, err := f.m.SetBaud(9600)
	require.NoError(t, err)
	assert.Equal(t, 9600, got)
	_, err = f.m.SetBaud(115200)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.peer.texts("alpha.local")) == 3
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"baud:115200", "baud:9600", "baud:115200"}, f.peer.texts("alpha.local"))

	assert.Equal(t, 115200, f.m.Baud())
	assert.Equal(t, 9600, f.m.LastBaud())
	stored, err := store.Load(KeyBaudRate)
	require.NoError(t, err)
	assert.Equal(t, "115200", string(stored))
}

func TestSetBaudRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.SetBaud(0)
	assert.ErrorIs(t, err, ErrInvalidBaudRate)
	_, err = f.m.SetBaud(-9600)
	assert.ErrorIs(t, err, ErrInvalidBaudRate)
	assert.Equal(t, 115200, f.m.Baud())
}

func TestSetBaudWithoutDevicePersists(t *testing.T) {
	store := NewMemoryStore()
	f := newFixture(t, WithStore(store))

	_, err := f.m.SetBaud(19200)
	require.NoError(t, err)
	stored, err := store.Load(KeyBaudRate)
	require.NoError(t, err)
	assert.Equal(t, "19200", string(stored))
}

func TestSetSignals(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	for _, v := range []any{true, 1, "on", "maybe", nil, false, "off"} {
		require.NoError(t, f.m.SetSignals(v))
	}

	want := []string{"baud:115200", "dtr:1", "dtr:1", "dtr:0", "dtr:0"}
	require.Eventually(t, func() bool {
		return len(f.peer.texts("alpha.local")) == len(want)
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, want, f.peer.texts("alpha.local"))
}

func TestSetSignalsWithoutDevice(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.m.SetSignals(true), ErrNoDevice)
}

func TestWriteDroppedWhileHookPending(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	f.m.SetBeforeWrite(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- f.m.Write(ctx, []byte("A")) }()
	<-started

	assert.ErrorIs(t, f.m.Write(ctx, []byte("B")), ErrWriteDropped)
	close(release)
	require.NoError(t, <-done)

	// The gate is free again and the hook was consumed
	require.NoError(t, f.m.Write(ctx, []byte("C")))

	require.Eventually(t, func() bool {
		return len(f.peer.binaries("alpha.local")) == 2
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, [][]byte{[]byte("A"), []byte("C")}, f.peer.binaries("alpha.local"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Metrics().WritesDropped.WithLabelValues(DropBusy)))
}

func TestWriteHookFailureDropsFrame(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")
	ctx := context.Background()

	f.m.SetBeforeWrite(func(context.Context) error { return errors.New("peripheral not ready") })
	err := f.m.Write(ctx, []byte("A"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peripheral not ready")

	require.NoError(t, f.m.Write(ctx, []byte("B")))
	require.Eventually(t, func() bool {
		return len(f.peer.binaries("alpha.local")) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, [][]byte{[]byte("B")}, f.peer.binaries("alpha.local"))
}

func TestNonBinaryWriteNeverSent(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	err := f.m.WriteFrame(context.Background(), TextFrame("baud:1"))
	require.ErrorIs(t, err, ErrNotBinary)
	assert.True(t, hasLog(f.hook, "write dropped"))

	// A binary write afterwards proves the text frame was not merely delayed
	require.NoError(t, f.m.Write(context.Background(), []byte{0x01}))
	require.Eventually(t, func() bool {
		return len(f.peer.binaries("alpha.local")) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"baud:115200"}, f.peer.texts("alpha.local"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Metrics().WritesDropped.WithLabelValues(DropNotBinary)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Metrics().FramesSent.WithLabelValues("binary")))
}

func TestWriteWithoutDevice(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.m.Write(context.Background(), []byte("x")), ErrNoDevice)
}

func TestSelectDeviceClosesPreviousFirst(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")
	f.connect(t, "beta.local")

	history := f.peer.history()
	closeAlpha := slices.Index(history, "close alpha.local")
	openBeta := slices.Index(history, "open beta.local")
	require.NotEqual(t, -1, closeAlpha, "alpha was never closed: %v", history)
	require.NotEqual(t, -1, openBeta)
	assert.Less(t, closeAlpha, openBeta, "history: %v", history)

	var order []string
	for _, e := range f.ev.all(EventDisconnected, EventDeviceSelected, EventConnected) {
		order = append(order, e.Kind.String()+" "+e.Endpoint)
	}
	assert.Equal(t, []string{
		"deviceSelected alpha.local",
		"connected alpha.local",
		"disconnected alpha.local",
		"deviceSelected beta.local",
		"connected beta.local",
	}, order)
}

func TestSelectSameDeviceIsNoop(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	require.NoError(t, f.m.SelectDevice(context.Background(), "alpha.local"))
	assert.Equal(t, 1, f.ev.count(EventDeviceSelected, "alpha.local"))
	assert.Equal(t, []string{"open alpha.local"}, f.peer.history())
}

func TestSelectInvalidDeviceClearsSelection(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	require.Error(t, f.m.SelectDevice(context.Background(), "bad/endpoint"))
	assert.Equal(t, "", f.m.CurrentDevice())
	assert.Equal(t, 1, f.ev.count(EventDeviceSelected, ""))
	assert.Len(t, f.ev.all(EventErrorPrompt), 1)
}

func TestDisconnectEmitsOnce(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	require.NoError(t, f.m.Disconnect(context.Background()))
	assert.Equal(t, Disconnected, f.m.State())
	assert.Contains(t, f.peer.history(), "close alpha.local")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.ev.count(EventDisconnected, "alpha.local"))
}

func TestDisconnectWithoutDevice(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Disconnect(context.Background()))
	assert.Empty(t, f.ev.all())
}

func TestRemoteCloseAndReconnect(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	f.peer.hangUp(t, "alpha.local", websocket.CloseGoingAway)
	require.Eventually(t, func() bool {
		return f.ev.count(EventDisconnected, "alpha.local") == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, Disconnected, f.m.State())
	assert.True(t, hasLog(f.hook, "disconnected by peer"))

	require.NoError(t, f.m.Connect(context.Background()))
	assert.Equal(t, Connected, f.m.State())
	require.Eventually(t, func() bool {
		return len(f.peer.texts("alpha.local")) == 2
	}, waitFor, 5*time.Millisecond)
}

func TestSupersededHandshakeStaysQuiet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	release := f.peer.hold("slow.local")
	t.Cleanup(release)

	errc := make(chan error, 1)
	go func() { errc <- f.m.SelectDevice(ctx, "slow.local") }()
	require.Eventually(t, func() bool {
		return slices.Contains(f.peer.history(), "open slow.local")
	}, waitFor, 5*time.Millisecond)

	f.connect(t, "fast.local")
	release()
	require.NoError(t, <-errc)

	require.Eventually(t, func() bool {
		return slices.Contains(f.peer.history(), "close slow.local")
	}, waitFor, 5*time.Millisecond)

	assert.Zero(t, f.ev.count(EventConnected, "slow.local"))
	assert.Zero(t, f.ev.count(EventDisconnected, "slow.local"))
	assert.Empty(t, f.peer.texts("slow.local"), "a superseded channel must not be configured")
	assert.Equal(t, "fast.local", f.m.CurrentDevice())
	assert.Equal(t, Connected, f.m.State())
}

func TestConcurrentDisconnectEmitsOnce(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.m.Disconnect(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, Disconnected, f.m.State())
	assert.Equal(t, 1, f.ev.count(EventDisconnected, "alpha.local"))
	assert.Equal(t, []string{"open alpha.local", "close alpha.local"}, f.peer.history())
}

func TestConcurrentSelectClosesPreviousFirst(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	var wg sync.WaitGroup
	for _, ep := range []string{"beta.local", "gamma.local"} {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.m.SelectDevice(context.Background(), ep))
		}()
	}
	wg.Wait()

	winner := f.m.CurrentDevice()
	require.Contains(t, []string{"beta.local", "gamma.local"}, winner)
	loser := "beta.local"
	if winner == loser {
		loser = "gamma.local"
	}

	// A superseded handshake closes its socket on its own goroutine
	require.Eventually(t, func() bool {
		h := f.peer.history()
		return !slices.Contains(h, "open "+loser) || slices.Contains(h, "close "+loser)
	}, waitFor, 5*time.Millisecond)

	history := f.peer.history()
	closeAlpha := slices.Index(history, "close alpha.local")
	require.NotEqual(t, -1, closeAlpha, "alpha was never closed: %v", history)
	for i, h := range history {
		if h == "open beta.local" || h == "open gamma.local" {
			assert.Less(t, closeAlpha, i, "history: %v", history)
		}
	}
	if f.ev.count(EventConnected, loser) == 1 {
		assert.Less(t, slices.Index(history, "close "+loser), slices.Index(history, "open "+winner), "history: %v", history)
	}

	assert.Equal(t, 1, f.ev.count(EventDisconnected, "alpha.local"))
	assert.Equal(t, f.ev.count(EventConnected, loser), f.ev.count(EventDisconnected, loser))
	assert.Equal(t, 1, f.ev.count(EventConnected, winner))
	assert.Zero(t, f.ev.count(EventDisconnected, winner))
	assert.Equal(t, Connected, f.m.State())
}

func TestDisconnectDuringHandshakeThenConnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	release := f.peer.hold("alpha.local")
	t.Cleanup(release)

	selected := make(chan error, 1)
	go func() { selected <- f.m.SelectDevice(ctx, "alpha.local") }()
	require.Eventually(t, func() bool {
		return slices.Contains(f.peer.history(), "open alpha.local")
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, f.m.Disconnect(ctx))
	assert.Equal(t, Disconnected, f.m.State())
	assert.Zero(t, f.ev.count(EventDisconnected, "alpha.local"), "nothing was connected yet")

	connected := make(chan error, 1)
	go func() { connected <- f.m.Connect(ctx) }()
	release()
	require.NoError(t, <-selected)
	require.NoError(t, <-connected)

	assert.Equal(t, Connected, f.m.State())
	assert.Equal(t, 1, f.ev.count(EventConnected, "alpha.local"))
	assert.Zero(t, f.ev.count(EventDisconnected, "alpha.local"))
	assert.Equal(t, []string{"open alpha.local", "close alpha.local", "open alpha.local"}, f.peer.history())

	// The surviving socket is live and still reported once when it goes away
	require.NoError(t, f.m.Write(ctx, []byte("ping")))
	require.Eventually(t, func() bool {
		return len(f.peer.binaries("alpha.local")) == 1
	}, waitFor, 5*time.Millisecond)
	require.NoError(t, f.m.Disconnect(ctx))
	assert.Equal(t, 1, f.ev.count(EventDisconnected, "alpha.local"))
}

func TestDisconnectHandedOffFromDataHandler(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")
	ctx := context.Background()

	done := make(chan error, 1)
	f.m.Subscribe(func(e Event) {
		if string(e.Data) == "bye" {
			go func() { done <- f.m.Disconnect(ctx) }()
		}
	}, EventData)

	f.peer.send(t, "alpha.local", BinaryFrame([]byte("bye")))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("disconnect from the data handler never finished")
	}
	assert.Equal(t, Disconnected, f.m.State())
	assert.Equal(t, 1, f.ev.count(EventDisconnected, "alpha.local"))
}

func TestStaleCloseIgnored(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")
	f.connect(t, "beta.local")
	require.Equal(t, 1, f.ev.count(EventDisconnected, "alpha.local"))

	f.m.mu.Lock()
	stale := f.m.channels["alpha.local"]
	f.m.mu.Unlock()
	f.m.handleClose(stale, CloseInfo{Code: websocket.CloseAbnormalClosure})

	assert.Equal(t, 1, f.ev.count(EventDisconnected, "alpha.local"))
	assert.Zero(t, f.ev.count(EventDisconnected, "beta.local"))
	assert.Equal(t, Connected, f.m.State())
}

func TestInboundEvents(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	f.peer.send(t, "alpha.local", BinaryFrame([]byte("hello")))
	f.peer.send(t, "alpha.local", TextFrame("proxy ready"))

	require.Eventually(t, func() bool {
		return len(f.ev.messages()) == 2
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"hello", "proxy ready"}, f.ev.messages())

	data := f.ev.all(EventData)
	require.Len(t, data, 1)
	assert.Equal(t, []byte("hello"), data[0].Data)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Metrics().FramesReceived.WithLabelValues("text")))
}

func TestUnknownInboundFrameDropped(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	f.m.mu.Lock()
	e := f.m.channels["alpha.local"]
	f.m.mu.Unlock()
	f.m.handleFrame(e, Frame{Type: FrameType(websocket.PingMessage), Payload: []byte("?")})

	assert.Empty(t, f.ev.all(EventData, EventMessage))
	assert.True(t, hasLog(f.hook, "dropping inbound frame"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Metrics().WritesDropped.WithLabelValues(DropBadFrame)))
}

func TestMute(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")
	ctx := context.Background()

	f.m.SetMute(true)
	assert.True(t, f.m.Muted())
	assert.ErrorIs(t, f.m.Write(ctx, []byte("x")), ErrMuted)
	assert.ErrorIs(t, f.m.WriteString(ctx, "x"), ErrMuted)

	// Control frames still go out
	_, err := f.m.SetBaud(9600)
	require.NoError(t, err)

	f.peer.send(t, "alpha.local", BinaryFrame([]byte("muted")))
	require.Eventually(t, func() bool {
		return len(f.ev.all(EventData)) == 1
	}, waitFor, 5*time.Millisecond)

	f.m.SetMute(false)
	f.peer.send(t, "alpha.local", TextFrame("marker"))
	require.Eventually(t, func() bool {
		return slices.Contains(f.ev.messages(), "marker")
	}, waitFor, 5*time.Millisecond)

	assert.Equal(t, []string{"marker"}, f.ev.messages())
	assert.Empty(t, f.peer.binaries("alpha.local"))
	require.Eventually(t, func() bool {
		return len(f.peer.texts("alpha.local")) == 2
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.Metrics().WritesDropped.WithLabelValues(DropMuted)))
}

func TestTextEncoding(t *testing.T) {
	f := newFixture(t, WithEncoding("iso-8859-1"))
	f.connect(t, "alpha.local")

	require.NoError(t, f.m.WriteString(context.Background(), "é"))
	require.Eventually(t, func() bool {
		return len(f.peer.binaries("alpha.local")) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []byte{0xE9}, f.peer.binaries("alpha.local")[0])

	f.peer.send(t, "alpha.local", BinaryFrame([]byte{0xFC}))
	require.Eventually(t, func() bool {
		return slices.Contains(f.ev.messages(), "ü")
	}, waitFor, 5*time.Millisecond)
}

func TestStateChangedEvents(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alpha.local")

	var states []State
	for _, e := range f.ev.all(EventStateChanged) {
		states = append(states, e.State)
	}
	assert.Equal(t, []State{Connecting, Connected}, states)
}
