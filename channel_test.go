package wsserial

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetURL(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
		wantErr  bool
	}{
		{"rock64.local", "wss://rock64.local:444", false},
		{"localhost", "wss://localhost:444", false},
		{"192.168.1.10", "wss://192.168.1.10:444", false},
		{"[::1]", "wss://[::1]:444", false},
		{"[fe80::1]", "wss://[fe80::1]:444", false},
		{"fe80::1", "", true},
		{"::1", "", true},
		{"", "", true},
		{"bad host", "", true},
		{"rock64.local:8080", "", true},
		{"rock64.local/serial", "", true},
		{"user@rock64.local", "", true},
		{"rock64.local?x=1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			got, err := targetURL(tt.endpoint, "wss", DefaultPort)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidEndpoint)
				var epErr *EndpointError
				require.ErrorAs(t, err, &epErr)
				assert.Equal(t, tt.endpoint, epErr.Endpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewChannelUsesConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, WithScheme("ws")(&cfg))
	require.NoError(t, WithPort(8080)(&cfg))

	ch, err := NewChannel("rock64.local", cfg)
	require.NoError(t, err)
	assert.Equal(t, "ws://rock64.local:8080", ch.URL())
	assert.Equal(t, "rock64.local", ch.Endpoint())
	assert.False(t, ch.Connected())
}

func TestChannelConnectSendClose(t *testing.T) {
	p := newPeer(t)
	log, _ := newTestLogger()

	ch, err := NewChannel("alpha.local", p.config(t, log))
	require.NoError(t, err)

	var closed atomic.Value
	ch.OnClose(func(info CloseInfo) { closed.Store(info) })

	require.NoError(t, ch.Connect(context.Background()))
	assert.True(t, ch.Connected())

	require.NoError(t, ch.Send(BaudCommand(9600)))
	require.NoError(t, ch.Send(BinaryFrame([]byte{0xde, 0xad})))

	require.Eventually(t, func() bool { return len(p.received()) == 2 }, 2*time.Second, 5*time.Millisecond)
	frames := p.received()
	assert.Equal(t, "baud:9600", string(frames[0].Frame.Payload))
	assert.Equal(t, FrameText, frames[0].Frame.Type)
	assert.Equal(t, []byte{0xde, 0xad}, frames[1].Frame.Payload)
	assert.Equal(t, FrameBinary, frames[1].Frame.Type)

	require.NoError(t, ch.Close(context.Background(), websocket.CloseNormalClosure, ""))
	assert.False(t, ch.Connected())

	// The close callback has already run by the time Close returns.
	info, ok := closed.Load().(CloseInfo)
	require.True(t, ok, "close acknowledgement not observed before Close returned")
	assert.Equal(t, websocket.CloseNormalClosure, info.Code)
	assert.True(t, info.Clean)
	assert.Contains(t, p.history(), "close alpha.local")
}

func TestChannelSendWhenNotConnected(t *testing.T) {
	p := newPeer(t)
	log, _ := newTestLogger()

	ch, err := NewChannel("alpha.local", p.config(t, log))
	require.NoError(t, err)

	assert.NoError(t, ch.Send(BaudCommand(9600)))
	assert.NoError(t, ch.Close(context.Background(), websocket.CloseNormalClosure, ""))
	assert.Empty(t, p.received())
	assert.Empty(t, p.history())
}

func TestChannelHandshakeFailure(t *testing.T) {
	p := newPeer(t)
	p.setReject(true)
	log, _ := newTestLogger()

	ch, err := NewChannel("alpha.local", p.config(t, log))
	require.NoError(t, err)

	err = ch.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshake)
	var hsErr *HandshakeError
	require.ErrorAs(t, err, &hsErr)
	assert.Equal(t, "ws://alpha.local:444", hsErr.URL)
	assert.False(t, ch.Connected())
}

func TestChannelInboundFrames(t *testing.T) {
	p := newPeer(t)
	log, _ := newTestLogger()

	ch, err := NewChannel("alpha.local", p.config(t, log))
	require.NoError(t, err)

	got := make(chan Frame, 2)
	ch.OnFrame(func(f Frame) { got <- f })

	require.NoError(t, ch.Connect(context.Background()))
	p.send(t, "alpha.local", BinaryFrame([]byte("raw")))
	p.send(t, "alpha.local", TextFrame("hello"))

	first := <-got
	assert.Equal(t, FrameBinary, first.Type)
	assert.Equal(t, "raw", string(first.Payload))
	second := <-got
	assert.Equal(t, FrameText, second.Type)
	assert.Equal(t, "hello", string(second.Payload))

	require.NoError(t, ch.Close(context.Background(), websocket.CloseNormalClosure, ""))
}

func TestChannelRemoteClose(t *testing.T) {
	p := newPeer(t)
	log, _ := newTestLogger()

	ch, err := NewChannel("alpha.local", p.config(t, log))
	require.NoError(t, err)

	closed := make(chan CloseInfo, 1)
	ch.OnClose(func(info CloseInfo) { closed <- info })

	require.NoError(t, ch.Connect(context.Background()))
	p.hangUp(t, "alpha.local", websocket.CloseGoingAway)

	select {
	case info := <-closed:
		assert.Equal(t, websocket.CloseGoingAway, info.Code)
		assert.Equal(t, "bye", info.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("remote close not reported")
	}
	assert.False(t, ch.Connected())
}

func TestChannelReconnect(t *testing.T) {
	p := newPeer(t)
	log, _ := newTestLogger()

	ch, err := NewChannel("alpha.local", p.config(t, log))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, ch.Connect(context.Background()))
		require.NoError(t, ch.Send(TextFrame("ping")))
		require.Eventually(t, func() bool { return len(p.texts("alpha.local")) == i+1 }, 2*time.Second, 5*time.Millisecond)
		require.NoError(t, ch.Close(context.Background(), websocket.CloseNormalClosure, ""))
	}
	assert.Equal(t, []string{"open alpha.local", "close alpha.local", "open alpha.local", "close alpha.local"}, p.history())
}

func TestChannelConcurrentOpenHasOneOwner(t *testing.T) {
	p := newPeer(t)
	log, _ := newTestLogger()

	ch, err := NewChannel("alpha.local", p.config(t, log))
	require.NoError(t, err)

	release := p.hold("alpha.local")
	t.Cleanup(release)

	type result struct {
		sock *socket
		err  error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			s, err := ch.open(context.Background())
			results <- result{s, err}
		}()
	}
	require.Eventually(t, func() bool { return len(p.history()) == 2 }, 2*time.Second, 5*time.Millisecond)
	release()

	var owned []*socket
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			assert.ErrorIs(t, r.err, errAlreadyOpen)
			assert.Nil(t, r.sock)
			continue
		}
		owned = append(owned, r.sock)
	}
	require.Len(t, owned, 1, "exactly one dial may own the channel")
	assert.True(t, ch.owns(owned[0]))

	// Connect on an open channel stays a no-op
	require.NoError(t, ch.Connect(context.Background()))
	assert.True(t, ch.owns(owned[0]))
	require.NoError(t, ch.Close(context.Background(), websocket.CloseNormalClosure, ""))
}

func TestChannelCloseSocketLeavesNewerSocket(t *testing.T) {
	p := newPeer(t)
	log, _ := newTestLogger()
	ctx := context.Background()

	ch, err := NewChannel("alpha.local", p.config(t, log))
	require.NoError(t, err)

	first, err := ch.open(ctx)
	require.NoError(t, err)
	require.NoError(t, ch.closeSocket(ctx, first, websocket.CloseNormalClosure, ""))
	assert.False(t, ch.Connected())

	second, err := ch.open(ctx)
	require.NoError(t, err)
	require.NoError(t, ch.closeSocket(ctx, first, websocket.CloseNormalClosure, ""))
	assert.True(t, ch.owns(second), "closing a stale socket must not touch the open one")

	require.NoError(t, ch.Send(TextFrame("still here")))
	require.Eventually(t, func() bool { return len(p.texts("alpha.local")) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, ch.closeSocket(ctx, second, websocket.CloseNormalClosure, ""))
	assert.False(t, ch.Connected())
}

func TestChannelSecureTransport(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		mt, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		_ = ws.WriteMessage(mt, payload)
		_, _, _ = ws.ReadMessage()
	}))
	defer srv.Close()

	_, portStr, _ := strings.Cut(srv.Listener.Addr().String(), ":")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	log, _ := newTestLogger()
	cfg := DefaultConfig()
	require.NoError(t, WithPort(port)(&cfg))
	require.NoError(t, WithTLSConfig(srv.Client().Transport.(*http.Transport).TLSClientConfig)(&cfg))
	require.NoError(t, WithLogger(log)(&cfg))

	ch, err := NewChannel("127.0.0.1", cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ch.URL(), "wss://127.0.0.1:"))

	echo := make(chan Frame, 1)
	ch.OnFrame(func(f Frame) { echo <- f })

	require.NoError(t, ch.Connect(context.Background()))
	require.NoError(t, ch.Send(BinaryFrame([]byte("secure"))))
	assert.Equal(t, "secure", string((<-echo).Payload))
	require.NoError(t, ch.Close(context.Background(), websocket.CloseNormalClosure, ""))
}
