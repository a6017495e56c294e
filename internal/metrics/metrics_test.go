package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetConnections(3)
	m.MessagePublished()
	m.MessagePublished()
	m.MessageDropped()
	m.PresenceTransition("offline")

	assert.Equal(t, float64(3), testutil.ToFloat64(m.Connections))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Published))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Dropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PresenceTransitions.WithLabelValues("offline")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.SetConnections(1)
		m.MessageDropped()
		m.SweepDemotion()
		m.ProtocolError("unknown_room")
	})
}
