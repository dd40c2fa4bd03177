package wsserial

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

// FrameType is the websocket message type a frame travels as
type FrameType int

const (
	FrameText   FrameType = websocket.TextMessage   // control command or passthrough text
	FrameBinary FrameType = websocket.BinaryMessage // raw serial bytes
)

func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Frame is one websocket message
type Frame struct {
	Type    FrameType
	Payload []byte
}

// BinaryFrame wraps serial payload bytes
func BinaryFrame(p []byte) Frame {
	return Frame{Type: FrameBinary, Payload: p}
}

// TextFrame wraps a text command
func TextFrame(s string) Frame {
	return Frame{Type: FrameText, Payload: []byte(s)}
}

// BaudCommand encodes "baud:<rate>"
func BaudCommand(rate int) Frame {
	return TextFrame("baud:" + strconv.Itoa(rate))
}

// DTRCommand encodes "dtr:1" or "dtr:0"
func DTRCommand(on bool) Frame {
	if on {
		return TextFrame("dtr:1")
	}
	return TextFrame("dtr:0")
}

// SignalCommand maps a signal value to its DTR frame. true and "on" assert
// DTR, false and "off" clear it. Any other value reports ok=false.
func SignalCommand(signal any) (Frame, bool) {
	switch v := signal.(type) {
	case bool:
		return DTRCommand(v), true
	case string:
		switch v {
		case "on":
			return DTRCommand(true), true
		case "off":
			return DTRCommand(false), true
		}
	}
	return Frame{}, false
}

// Inbound classifies a received frame
type Inbound int

const (
	InboundData    Inbound = iota // serial bytes
	InboundMessage                // passthrough text
)

// Classify sorts a received frame into data or message. The inbound direction
// carries no commands so text is never parsed here.
func Classify(f Frame) (Inbound, error) {
	switch f.Type {
	case FrameBinary:
		return InboundData, nil
	case FrameText:
		return InboundMessage, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownFrame, f.Type)
	}
}

// CheckData rejects anything but a binary frame on the data path
func CheckData(f Frame) error {
	if f.Type != FrameBinary {
		return fmt.Errorf("%w: got %s", ErrNotBinary, f.Type)
	}
	return nil
}

// CommandKind identifies a parsed control command
type CommandKind int

const (
	CommandBaud CommandKind = iota + 1
	CommandDTR
)

// Command is a decoded control frame as seen by the device side
type Command struct {
	Kind CommandKind
	Baud int
	DTR  bool
}

// ParseCommand decodes "baud:<N>", "dtr:1" and "dtr:0"
func ParseCommand(s string) (Command, error) {
	name, arg, ok := strings.Cut(s, ":")
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}

	switch name {
	case "baud":
		rate, err := strconv.Atoi(arg)
		if err != nil || rate <= 0 {
			return Command{}, fmt.Errorf("%w: %q", ErrInvalidBaudRate, arg)
		}
		return Command{Kind: CommandBaud, Baud: rate}, nil
	case "dtr":
		switch arg {
		case "1":
			return Command{Kind: CommandDTR, DTR: true}, nil
		case "0":
			return Command{Kind: CommandDTR, DTR: false}, nil
		}
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}
