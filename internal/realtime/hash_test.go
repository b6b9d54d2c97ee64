package realtime

import (
	"testing"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestContentHashDeterministic(t *testing.T) {
	v := map[string]any{"b": 2, "a": 1, "c": []int{1, 2, 3}}

	h1 := ContentHash(v)
	h2 := ContentHash(map[string]any{"c": []int{1, 2, 3}, "a": 1, "b": 2})

	// json.Marshal sorts map keys, so key order must not matter
	assert.Equal(t, h1, h2)
	assert.NotEmpty(t, h1)
}

func TestContentHashDetectsChange(t *testing.T) {
	a := domain.BusinessMetricsSnapshot{Leads: domain.LeadMetrics{Total: 100}}
	b := domain.BusinessMetricsSnapshot{Leads: domain.LeadMetrics{Total: 101}}

	assert.NotEqual(t, ContentHash(a), ContentHash(b))
}

func TestContentHashIgnoresVolatileTimestamps(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Second)

	a := domain.SystemHealthSnapshot{
		Timestamp:     t1,
		TotalAgents:   2,
		HealthyAgents: 2,
		Agents: []domain.AgentHealth{
			{AgentID: "seo", Status: domain.StatusHealthy, Healthy: true, Timestamp: t1},
			{AgentID: "analytics", Status: domain.StatusHealthy, Healthy: true, Timestamp: t1},
		},
	}
	b := a
	b.Timestamp = t2
	b.Agents = []domain.AgentHealth{
		{AgentID: "seo", Status: domain.StatusHealthy, Healthy: true, Timestamp: t2},
		{AgentID: "analytics", Status: domain.StatusHealthy, Healthy: true, Timestamp: t2},
	}

	// Same semantic content polled at a different instant must not look changed
	assert.Equal(t, ContentHash(a), ContentHash(b))

	c := b
	c.Agents = []domain.AgentHealth{
		{AgentID: "seo", Status: domain.StatusError, Timestamp: t2},
		{AgentID: "analytics", Status: domain.StatusHealthy, Healthy: true, Timestamp: t2},
	}
	c.HealthyAgents = 1
	c.ErrorAgents = 1
	assert.NotEqual(t, ContentHash(a), ContentHash(c))
}

func TestContentHashMetricsGeneratedAt(t *testing.T) {
	a := domain.BusinessMetricsSnapshot{
		Leads:       domain.LeadMetrics{Total: 10, Trend: domain.TrendUp},
		GeneratedAt: time.Now(),
	}
	b := a
	b.GeneratedAt = a.GeneratedAt.Add(time.Minute)

	assert.Equal(t, ContentHash(a), ContentHash(b))
}
