package wsserial

import (
	"errors"
	"fmt"
)

// Predefined error types for robust error handling
var (
	ErrInvalidEndpoint = errors.New("endpoint cannot be used as a transport target")
	ErrHandshake       = errors.New("websocket handshake failed")
	ErrNoDevice        = errors.New("no device selected")
	ErrDuplicateDevice = errors.New("device already registered")
	ErrInvalidBaudRate = errors.New("invalid baud rate")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrNotFound        = errors.New("key not found in store")

	// Write path errors. These are drops, not faults: the frame is discarded.
	ErrWriteDropped = errors.New("write dropped: another write is in flight")
	ErrNotBinary    = errors.New("data frames must be binary")
	ErrMuted        = errors.New("write suppressed while muted")

	// Protocol errors
	ErrUnknownFrame   = errors.New("unknown frame type")
	ErrUnknownCommand = errors.New("unknown control command")

	errAlreadyOpen = errors.New("channel already has an open socket")
)

// EndpointError reports an endpoint that could not be turned into a channel.
type EndpointError struct {
	Endpoint string
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("invalid endpoint %q: %v", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() []error {
	return []error{ErrInvalidEndpoint, e.Err}
}

// HandshakeError reports a failed connection attempt to URL.
type HandshakeError struct {
	URL string
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *HandshakeError) Unwrap() []error {
	return []error{ErrHandshake, e.Err}
}
