package wsserial

import (
	"context"
	"fmt"
	"sync"
)

// Hook runs before the next data frame is transmitted
type Hook func(ctx context.Context) error

// WriteGate lets at most one data write be in flight. A write that arrives
// while another is running is dropped, never queued.
//
// A single optional hook may be registered with SetBeforeWrite. The next
// write cycle consumes it: the cycle marks the gate busy, awaits the hook and
// only then transmits.
type WriteGate struct {
	mu   sync.Mutex
	busy bool
	hook Hook
}

// SetBeforeWrite registers hook for the next write, replacing any hook that
// has not been consumed yet. A nil hook clears the slot.
func (g *WriteGate) SetBeforeWrite(hook Hook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hook = hook
}

// Pending reports whether a hook is waiting for the next write
func (g *WriteGate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hook != nil
}

// Busy reports whether a write cycle is in flight
func (g *WriteGate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

// Do runs one write cycle. It returns ErrWriteDropped without calling send
// when another cycle is in flight. A failing hook ends the cycle and send is
// not called.
func (g *WriteGate) Do(ctx context.Context, send func() error) error {
	g.mu.Lock()
	if g.busy {
		g.mu.Unlock()
		return ErrWriteDropped
	}
	g.busy = true
	hook := g.hook
	g.hook = nil
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.busy = false
		g.mu.Unlock()
	}()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("before-write hook: %w", err)
		}
	}
	return send()
}
