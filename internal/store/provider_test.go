package store

import (
	"testing"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMetricsTolerant(t *testing.T) {
	now := time.Now()
	snap, err := decodeMetrics(map[string]any{
		"leads":      map[string]any{"total": 150.0, "new": 12.0, "qualified": 40.0, "trend": "up"},
		"cost":       map[string]any{"total_spend": 4200.5, "cost_per_lead": 28.0, "trend": "skyrocketing"},
		"conversion": map[string]any{"rate": 3.4, "total": 51.0},
		"revenue":    map[string]any{"total": 90000.0, "roi": 2.1, "trend": "down"},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, 150, snap.Leads.Total)
	assert.Equal(t, domain.TrendUp, snap.Leads.Trend)
	// Unknown trend collapses to stable
	assert.Equal(t, domain.TrendStable, snap.Cost.Trend)
	// Missing trend too
	assert.Equal(t, domain.TrendStable, snap.Conversion.Trend)
	assert.Equal(t, domain.TrendDown, snap.Revenue.Trend)
	// Missing generated_at falls back to the call timestamp
	assert.Equal(t, now, snap.GeneratedAt)
}

func TestDecodeActivityFillsDefaults(t *testing.T) {
	now := time.Now()
	items := decodeActivity(map[string]any{
		"activities": []any{
			map[string]any{"id": "a1", "title": "Campaign sent", "priority": "high", "impact_score": 8.0},
			map[string]any{"title": "No identity", "timestamp": "2025-06-01T10:00:00Z"},
			map[string]any{"id": "a3", "title": "Weird priority", "priority": "urgent"},
		},
	}, now)
	require.Len(t, items, 3)

	assert.Equal(t, "a1", items[0].ID)
	assert.Equal(t, domain.PriorityHigh, items[0].Priority)
	assert.Equal(t, now, items[0].Timestamp)

	// Deterministic surrogate ID: the set difference downstream needs
	// the same entry to keep the same identity across polls
	assert.Equal(t, "No identity|2025-06-01T10:00:00Z", items[1].ID)

	// Unknown priority collapses to low
	assert.Equal(t, domain.PriorityLow, items[2].Priority)
}

func TestDecodeActivityMissingList(t *testing.T) {
	assert.Nil(t, decodeActivity(map[string]any{"foo": "bar"}, time.Now()))
	assert.Nil(t, decodeActivity(nil, time.Now()))
}
