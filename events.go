package wsserial

import (
	"fmt"
	"sync"
)

// EventKind identifies what an Event reports
type EventKind int

const (
	EventData           EventKind = iota + 1 // Data holds received serial bytes
	EventMessage                             // Text holds received text
	EventConnected                           // Endpoint is now connected
	EventDisconnected                        // Endpoint is no longer connected
	EventDeviceSelected                      // Endpoint is the new current device, "" for none
	EventDevicePrompt                        // the UI should ask the user to name a device
	EventErrorPrompt                         // Text holds a message to show the user
	EventStateChanged                        // State, baud or mute changed; see Manager.Status
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventMessage:
		return "message"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventDeviceSelected:
		return "deviceSelected"
	case EventDevicePrompt:
		return "devicePromptRequested"
	case EventErrorPrompt:
		return "errorPrompt"
	case EventStateChanged:
		return "stateChanged"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is published by a Manager. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	Endpoint string
	Data     []byte
	Text     string
	State    State
}

func (e Event) String() string {
	switch e.Kind {
	case EventData:
		return fmt.Sprintf("[%s] %d bytes", e.Kind, len(e.Data))
	case EventMessage, EventErrorPrompt:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Text)
	case EventStateChanged:
		return fmt.Sprintf("[%s] %s %s", e.Kind, e.Endpoint, e.State)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Endpoint)
	}
}

// Subscription is a registered event handler
type Subscription struct {
	fn        func(Event)
	kinds     map[EventKind]bool
	emitter   *Emitter
	closeOnce sync.Once
}

// Close stops delivery to the handler
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.emitter.unsubscribe(s)
	})
}

func (s *Subscription) wants(k EventKind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Emitter fans events out to subscribers. Handlers run synchronously on the
// emitting goroutine, in subscription order, and must not block.
type Emitter struct {
	mu   sync.RWMutex
	subs []*Subscription
}

// Subscribe registers fn for the given kinds, or for all kinds if none are given
func (e *Emitter) Subscribe(fn func(Event), kinds ...EventKind) *Subscription {
	sub := &Subscription{fn: fn, emitter: e}
	if len(kinds) > 0 {
		sub.kinds = make(map[EventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, sub)
	return sub
}

func (e *Emitter) unsubscribe(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s == sub {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

func (e *Emitter) emit(ev Event) {
	e.mu.RLock()
	subs := e.subs
	e.mu.RUnlock()

	for _, s := range subs {
		if s.wants(ev.Kind) {
			s.fn(ev)
		}
	}
}
