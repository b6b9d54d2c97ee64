package realtime_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/realtime"
	"github.com/xela07ax/agentpulse/internal/realtime/realtimetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

// eventSink collects bus events for assertions from test goroutines.
type eventSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *eventSink) record(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *eventSink) last() domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func (s *eventSink) all() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

func newTestPoller(clock realtime.Clock, loops []realtime.LoopConfig) (*realtime.Poller, *realtime.Bus) {
	bus := realtime.NewBus(zap.NewNop())
	p := realtime.NewPoller(clock, bus, nil, zap.NewNop(), loops, 3)
	return p, bus
}

func TestSnapshotLoopEmitsOnChangeOnly(t *testing.T) {
	clock := realtimetest.NewFakeClock(time.Now())

	var val atomic.Int64
	val.Store(1)
	var fetches atomic.Int64

	loops := []realtime.LoopConfig{{
		Name:      "metrics",
		Kind:      realtime.LoopSnapshot,
		Interval:  time.Minute,
		EventType: domain.EventBusinessMetrics,
		Fetch: func(ctx context.Context) (any, error) {
			fetches.Add(1)
			return map[string]int64{"v": val.Load()}, nil
		},
	}}
	p, bus := newTestPoller(clock, loops)

	sink := &eventSink{}
	bus.On(domain.EventBusinessMetrics, sink.record)

	p.Start()
	defer p.Stop()

	// First poll runs immediately, before any tick
	require.Eventually(t, func() bool { return sink.count() == 1 }, waitFor, tick)

	// Unchanged content: the cycle runs but the duplicate is suppressed
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return fetches.Load() == 2 }, waitFor, tick)
	assert.Equal(t, 1, sink.count())

	val.Store(2)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return sink.count() == 2 }, waitFor, tick)
	assert.Equal(t, map[string]int64{"v": int64(2)}, sink.last().Payload)
}

func TestResetCacheForcesReEmit(t *testing.T) {
	clock := realtimetest.NewFakeClock(time.Now())
	var fetches atomic.Int64

	loops := []realtime.LoopConfig{{
		Name:      "metrics",
		Kind:      realtime.LoopSnapshot,
		Interval:  time.Minute,
		EventType: domain.EventBusinessMetrics,
		Fetch: func(ctx context.Context) (any, error) {
			fetches.Add(1)
			return "constant", nil
		},
	}}
	p, bus := newTestPoller(clock, loops)

	sink := &eventSink{}
	bus.On(domain.EventBusinessMetrics, sink.record)

	p.Start()
	defer p.Stop()
	require.Eventually(t, func() bool { return sink.count() == 1 }, waitFor, tick)

	// After a cache reset the very same content counts as fresh again
	p.ResetCache()
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return sink.count() == 2 }, waitFor, tick)
}

func TestHealthLoopEmitsPerChangedAgent(t *testing.T) {
	clock := realtimetest.NewFakeClock(time.Now())

	healthy := func(id string) domain.AgentHealth {
		return domain.AgentHealth{AgentID: id, Status: domain.StatusHealthy, Healthy: true, Timestamp: clock.Now()}
	}
	var seoDown atomic.Bool
	var fetches atomic.Int64

	loops := []realtime.LoopConfig{{
		Name:     "health",
		Kind:     realtime.LoopPerAgent,
		Interval: time.Minute,
		Fetch: func(ctx context.Context) (any, error) {
			fetches.Add(1)
			seo := healthy("seo")
			if seoDown.Load() {
				seo = domain.AgentHealth{AgentID: "seo", Status: domain.StatusError, Timestamp: clock.Now(), Error: "connection refused"}
			}
			snap := domain.SystemHealthSnapshot{
				Timestamp:   clock.Now(),
				TotalAgents: 2,
				Agents:      []domain.AgentHealth{healthy("analytics"), seo},
			}
			if seoDown.Load() {
				snap.HealthyAgents, snap.ErrorAgents = 1, 1
			} else {
				snap.HealthyAgents = 2
			}
			return snap, nil
		},
	}}
	p, bus := newTestPoller(clock, loops)

	agents := &eventSink{}
	system := &eventSink{}
	bus.On(domain.EventAgentHealth, agents.record)
	bus.On(domain.EventSystemHealth, system.record)

	p.Start()
	defer p.Stop()

	// First cycle: every agent is new, plus the aggregate
	require.Eventually(t, func() bool { return agents.count() == 2 && system.count() == 1 }, waitFor, tick)

	// Second cycle with identical content: everything suppressed
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return fetches.Load() == 2 }, waitFor, tick)
	assert.Equal(t, 2, agents.count())
	assert.Equal(t, 1, system.count())

	// One agent degrades: exactly one agent event plus a changed aggregate
	seoDown.Store(true)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return agents.count() == 3 && system.count() == 2 }, waitFor, tick)

	changed, ok := agents.last().Payload.(domain.AgentHealth)
	require.True(t, ok)
	assert.Equal(t, "seo", changed.AgentID)
	assert.Equal(t, domain.StatusError, changed.Status)
}

func TestActivityLoopSetDifference(t *testing.T) {
	clock := realtimetest.NewFakeClock(time.Now())
	base := clock.Now()

	item := func(id string, age time.Duration, prio domain.Priority, impact float64) domain.ActivityItem {
		return domain.ActivityItem{
			ID: id, Title: id, AgentName: "seo",
			Priority: prio, Timestamp: base.Add(-age), ImpactScore: impact,
		}
	}

	var phase atomic.Int64
	var fetches atomic.Int64
	loops := []realtime.LoopConfig{{
		Name:     "activity",
		Kind:     realtime.LoopActivity,
		Interval: time.Minute,
		Fetch: func(ctx context.Context) (any, error) {
			fetches.Add(1)
			items := []domain.ActivityItem{
				item("a", 3*time.Hour, domain.PriorityLow, 1),
				item("b", 2*time.Hour, domain.PriorityMedium, 3),
			}
			if phase.Load() >= 1 {
				items = append(items, item("c", time.Hour, domain.PriorityHigh, 9))
			}
			return items, nil
		},
	}}
	p, bus := newTestPoller(clock, loops)

	activity := &eventSink{}
	alerts := &eventSink{}
	bus.On(domain.EventActivity, activity.record)
	bus.On(domain.EventAlert, alerts.record)

	p.Start()
	defer p.Stop()

	// First cycle: the whole window is new
	require.Eventually(t, func() bool { return activity.count() == 1 }, waitFor, tick)
	first := activity.last().Payload.(domain.ActivityUpdate)
	assert.Len(t, first.Items, 2)
	assert.Len(t, first.New, 2)
	// Newest first
	assert.Equal(t, "b", first.Items[0].ID)
	assert.Equal(t, 0, alerts.count())

	// Second cycle: only the appended item is new, and it raises an alert
	phase.Store(1)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return activity.count() == 2 }, waitFor, tick)
	second := activity.last().Payload.(domain.ActivityUpdate)
	assert.Len(t, second.Items, 3)
	require.Len(t, second.New, 1)
	assert.Equal(t, "c", second.New[0].ID)

	require.Eventually(t, func() bool { return alerts.count() == 1 }, waitFor, tick)
	alert := alerts.last().Payload.(domain.Alert)
	assert.Equal(t, domain.AlertCritical, alert.Type)
	assert.Contains(t, alert.Title, "c")

	// Third cycle: same feed, nothing emitted
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return fetches.Load() == 3 }, waitFor, tick)
	assert.Equal(t, 2, activity.count())
	assert.Equal(t, 1, alerts.count())
}
