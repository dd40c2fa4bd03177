package wsserial

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Reasons used on the drop counter
const (
	DropBusy      = "busy"
	DropMuted     = "muted"
	DropNotBinary = "not_binary"
	DropNoDevice  = "no_device"
	DropHook      = "hook"
	DropBadFrame  = "bad_frame"
)

// Metrics holds the prometheus collectors for one side of the link. The
// subsystem is "client" for a Manager and "bridge" for the serial bridge.
type Metrics struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	WritesDropped  *prometheus.CounterVec
	Connects       *prometheus.CounterVec
	WriteDuration  prometheus.Histogram
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// leaves them unregistered. Collectors already registered under the same
// names are reused.
func NewMetrics(reg prometheus.Registerer, subsystem string) (*Metrics, error) {
	m := &Metrics{
		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wsserial",
				Subsystem: subsystem,
				Name:      "frames_sent_total",
				Help:      "Frames written to the websocket.",
			},
			[]string{"type"},
		),
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wsserial",
				Subsystem: subsystem,
				Name:      "frames_received_total",
				Help:      "Frames read from the websocket.",
			},
			[]string{"type"},
		),
		WritesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wsserial",
				Subsystem: subsystem,
				Name:      "writes_dropped_total",
				Help:      "Writes that were not transmitted.",
			},
			[]string{"reason"},
		),
		Connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wsserial",
				Subsystem: subsystem,
				Name:      "connects_total",
				Help:      "Connection attempts by result.",
			},
			[]string{"result"},
		),
		WriteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "wsserial",
				Subsystem: subsystem,
				Name:      "write_duration_seconds",
				Help:      "Duration of a write cycle including the before-write hook.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	m.FramesSent, err = register(reg, m.FramesSent)
	if err != nil {
		return nil, err
	}
	m.FramesReceived, err = register(reg, m.FramesReceived)
	if err != nil {
		return nil, err
	}
	m.WritesDropped, err = register(reg, m.WritesDropped)
	if err != nil {
		return nil, err
	}
	m.Connects, err = register(reg, m.Connects)
	if err != nil {
		return nil, err
	}
	m.WriteDuration, err = register(reg, m.WriteDuration)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Sent counts a transmitted frame
func (m *Metrics) Sent(t FrameType) {
	m.FramesSent.WithLabelValues(t.String()).Inc()
}

// Received counts an inbound frame
func (m *Metrics) Received(t FrameType) {
	m.FramesReceived.WithLabelValues(t.String()).Inc()
}

// Dropped counts a frame that was discarded, inbound or outbound
func (m *Metrics) Dropped(reason string) {
	m.WritesDropped.WithLabelValues(reason).Inc()
}

// Connected counts a connection attempt
func (m *Metrics) Connected(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Connects.WithLabelValues(result).Inc()
}
