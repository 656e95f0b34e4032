package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Counters(t *testing.T) {
	p := New(prometheus.NewRegistry(), "test")

	p.Heartbeat(true)
	p.Heartbeat(false)
	p.Heartbeat(false)
	p.Event("down")
	p.FalseAlarm()
	p.AlertResult("sent")
	p.RateLimited()
	p.GateHeld(true)
	p.QueueDepth(4)
	p.ArmedWorkers(7)

	require.Equal(t, 1.0, testutil.ToFloat64(p.heartbeats.WithLabelValues("true")))
	require.Equal(t, 2.0, testutil.ToFloat64(p.heartbeats.WithLabelValues("false")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.events.WithLabelValues("down")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.falseAlarms))
	require.Equal(t, 1.0, testutil.ToFloat64(p.alerts.WithLabelValues("sent")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.rateLimited))
	require.Equal(t, 1.0, testutil.ToFloat64(p.gateHeld))
	require.Equal(t, 4.0, testutil.ToFloat64(p.queueDepth))
	require.Equal(t, 7.0, testutil.ToFloat64(p.armedWorkers))

	p.GateHeld(false)
	require.Equal(t, 0.0, testutil.ToFloat64(p.gateHeld))
}

func TestPrometheus_NilIsNoop(t *testing.T) {
	var p *Prometheus
	require.NotPanics(t, func() {
		p.Heartbeat(true)
		p.Event("up")
		p.FalseAlarm()
		p.AlertResult("dropped")
		p.RateLimited()
		p.GateHeld(true)
		p.QueueDepth(1)
		p.ArmedWorkers(1)
	})
}
