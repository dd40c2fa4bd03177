// Package wsserial drives the serial port of an embedded device through a
// websocket proxy running on that device.
//
// A device is named by its endpoint, a bare hostname or IP address. The
// proxy is reached at <scheme>://<endpoint>:<port>, wss and 444 unless
// configured otherwise. One websocket carries two protocols: binary frames
// are serial data in both directions, text frames are control commands
// ("baud:<N>" and "dtr:1" or "dtr:0") going to the device and free text
// coming back.
//
// # Basic Usage
//
// Create a manager, select a device and write to it:
//
//	m, err := wsserial.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close(context.Background())
//
//	if err := m.SelectDevice(ctx, "rock64.local"); err != nil {
//	    log.Fatal(err)
//	}
//	err = m.Write(ctx, []byte("AT\r"))
//
// Selecting a device connects to it and sends the current baud rate as the
// first frame. Selecting another device closes the previous connection and
// waits for the close handshake before the new one is opened.
//
// # Configuration Options
//
// Use functional options for custom configuration:
//
//	m, err := wsserial.New(
//	    wsserial.WithScheme("ws"),
//	    wsserial.WithPort(8444),
//	    wsserial.WithBaudRate(9600),
//	    wsserial.WithEncoding("iso-8859-1"),
//	    wsserial.WithStore(store),
//	    wsserial.WithLogger(log),
//	)
//
// # Events
//
// Everything the manager observes is published as an Event. Subscribers may
// filter by kind:
//
//	sub := m.Subscribe(func(e wsserial.Event) {
//	    fmt.Printf("%s: %q\n", e.Endpoint, e.Data)
//	}, wsserial.EventData)
//	defer sub.Close()
//
// Handlers run synchronously on the goroutine that produced the event, which
// is either the caller of a manager method or a connection's read loop. They
// must not block and must not call back into the manager. Disconnect waits
// for the read loop, so a data handler that wants to hang up starts it on a
// new goroutine:
//
//	m.Subscribe(func(e wsserial.Event) {
//	    if bytes.Contains(e.Data, []byte("PANIC")) {
//	        go m.Disconnect(ctx)
//	    }
//	}, wsserial.EventData)
//
// SelectDevice and Disconnect are serialized. A Disconnect that arrives while
// a handshake is still running abandons it: the socket is closed as soon as
// it opens and no connected or disconnected event is published for it.
//
// # Writes
//
// Writes pass through a WriteGate with room for a single write. A write that
// arrives while another is in flight is dropped with ErrWriteDropped rather
// than queued. A hook installed with SetBeforeWrite runs once before the next
// write, for example to wait for the device to boot:
//
//	m.SetBeforeWrite(func(ctx context.Context) error {
//	    return waitForPrompt(ctx)
//	})
//
// Baud rate and DTR changes bypass the gate and are sent even while muted.
//
// # Known Devices
//
// Registered devices and the last baud rate are kept in a Store. FileStore
// keeps them in one JSON document guarded by an advisory file lock so that
// several processes can share it:
//
//	store, err := wsserial.NewFileStore("/home/me/.config/wsserial/state.json")
//
// # Reconnection
//
// The manager never reconnects on its own. After a failed handshake or a
// remote close the device stays selected and disconnected until Connect is
// called again.
//
// # Error Handling
//
// Use errors.Is() for error type checking:
//
//	if errors.Is(err, wsserial.ErrWriteDropped) {
//	    // Another write was in flight
//	}
//
// Endpoint and handshake failures are reported as *EndpointError and
// *HandshakeError, which also match ErrInvalidEndpoint and ErrHandshake.
//
// # Default Configuration
//
//   - Scheme: wss
//   - Port: 444
//   - BaudRate: 115200
//   - Encoding: utf-8
//   - Store: in memory
//   - HandshakeTimeout: none
package wsserial
