package wsserial

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistrationIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()

	a, err := NewMetrics(reg, "client")
	require.NoError(t, err)
	b, err := NewMetrics(reg, "client")
	require.NoError(t, err)

	a.Sent(FrameBinary)
	b.Sent(FrameBinary)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.FramesSent.WithLabelValues("binary")))

	_, err = NewMetrics(reg, "bridge")
	require.NoError(t, err, "a second subsystem does not collide")
}

func TestMetricsWithoutRegisterer(t *testing.T) {
	m, err := NewMetrics(nil, "client")
	require.NoError(t, err)

	m.Dropped(DropBusy)
	m.Connected(nil)
	m.Connected(errors.New("refused"))
	m.Received(FrameText)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WritesDropped.WithLabelValues(DropBusy)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connects.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connects.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("text")))
}
