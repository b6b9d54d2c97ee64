package realtime_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/infra"
	"github.com/xela07ax/agentpulse/internal/realtime"
	"github.com/xela07ax/agentpulse/internal/realtime/realtimetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newReconnectFixture(t *testing.T, clock *realtimetest.FakeClock, failing *atomic.Bool) (*realtime.Controller, *realtime.Bus) {
	t.Helper()

	loops := []realtime.LoopConfig{{
		Name:      "metrics",
		Kind:      realtime.LoopSnapshot,
		Interval:  30 * time.Second,
		EventType: domain.EventBusinessMetrics,
		Fetch: func(ctx context.Context) (any, error) {
			if failing.Load() {
				return nil, errors.New("agent unreachable")
			}
			return "steady", nil
		},
	}}

	bus := realtime.NewBus(zap.NewNop())
	p := realtime.NewPoller(clock, bus, nil, zap.NewNop(), loops, 10)
	c := realtime.NewController(p, bus, clock, nil, zap.NewNop(), infra.RealtimeConfig{
		ReconnectBaseDelay:   time.Second,
		MaxReconnectAttempts: 5,
	})
	return c, bus
}

func waitDelays(t *testing.T, clock *realtimetest.FakeClock, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(clock.AfterDelays()) >= n }, waitFor, tick)
}

func TestReconnectBackoffCurve(t *testing.T) {
	clock := realtimetest.NewFakeClock(time.Now())
	var failing atomic.Bool
	failing.Store(true)

	ctrl, bus := newReconnectFixture(t, clock, &failing)

	status := &eventSink{}
	bus.On(domain.EventConnectionStatus, status.record)

	ctrl.Connect()

	// Each consecutive failure doubles the scheduled delay
	waitDelays(t, clock, 1)
	for _, d := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second} {
		n := len(clock.AfterDelays())
		clock.Advance(d)
		waitDelays(t, clock, n+1)
	}
	assert.Equal(t,
		[]time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second},
		clock.AfterDelays())

	// The fifth retry fails too: attempts are exhausted, the controller
	// goes terminal and stops scheduling
	clock.Advance(16 * time.Second)
	require.Eventually(t, func() bool {
		for _, e := range status.all() {
			cs, ok := e.Payload.(domain.ConnectionStatus)
			if ok && cs.Reason == "real-time connection lost" {
				return true
			}
		}
		return false
	}, waitFor, tick)
	assert.False(t, ctrl.IsConnected())
	assert.Len(t, clock.AfterDelays(), 5)

	// No auto-recovery from terminal state, even long after
	clock.Advance(10 * time.Minute)
	assert.False(t, ctrl.IsConnected())

	// Explicit Connect resets the attempt budget and recovers
	failing.Store(false)
	ctrl.Connect()
	assert.True(t, ctrl.IsConnected())
}

func TestReconnectAttemptsResetOnSuccess(t *testing.T) {
	clock := realtimetest.NewFakeClock(time.Now())
	var failing atomic.Bool
	failing.Store(true)

	ctrl, bus := newReconnectFixture(t, clock, &failing)

	metrics := &eventSink{}
	bus.On(domain.EventBusinessMetrics, metrics.record)

	ctrl.Connect()

	// First failure schedules the base delay
	waitDelays(t, clock, 1)
	assert.Equal(t, []time.Duration{time.Second}, clock.AfterDelays())

	// The retry succeeds and clears the consecutive-failure counter;
	// the emitted metrics event proves the cycle ran to completion
	failing.Store(false)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return ctrl.IsConnected() && metrics.count() == 1 }, waitFor, tick)

	// A later failure starts the curve from the base delay again
	failing.Store(true)
	clock.Advance(30 * time.Second)
	waitDelays(t, clock, 2)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.AfterDelays())
}

func TestDisconnectClearsComparisonCache(t *testing.T) {
	clock := realtimetest.NewFakeClock(time.Now())
	var failing atomic.Bool

	ctrl, bus := newReconnectFixture(t, clock, &failing)

	metrics := &eventSink{}
	status := &eventSink{}
	bus.On(domain.EventBusinessMetrics, metrics.record)
	bus.On(domain.EventConnectionStatus, status.record)

	ctrl.Connect()
	require.Eventually(t, func() bool { return metrics.count() == 1 }, waitFor, tick)

	ctrl.Disconnect()
	assert.False(t, ctrl.IsConnected())

	// Reconnecting must re-emit even unchanged content: the comparison
	// cache was cleared on disconnect
	ctrl.Connect()
	require.Eventually(t, func() bool { return metrics.count() == 2 }, waitFor, tick)

	var reasons []string
	for _, e := range status.all() {
		cs := e.Payload.(domain.ConnectionStatus)
		if !cs.Connected {
			reasons = append(reasons, cs.Reason)
		}
	}
	assert.Equal(t, []string{"manual disconnect"}, reasons)
}
