package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/infra"
	"github.com/xela07ax/agentpulse/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	records []Record
	batches int
}

func (m *memStorage) WriteBatch(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	m.batches++
	return nil
}

func (m *memStorage) all() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

func testConfig() infra.HistoryConfig {
	return infra.HistoryConfig{
		Enabled:       true,
		BufferSize:    100,
		BatchSize:     2,
		FlushInterval: 20 * time.Millisecond,
	}
}

func TestRecorderDrainsOnStop(t *testing.T) {
	storage := &memStorage{}
	rec := NewRecorder(storage, zap.NewNop(), testConfig())
	rec.Start()

	for i := 0; i < 5; i++ {
		rec.Write(Record{ID: "r", Kind: KindActivity, Title: "t"})
	}
	rec.Stop()

	// Stop must flush everything, including the incomplete tail batch
	assert.Len(t, storage.all(), 5)

	// Writes after Stop are dropped, not panicking on a closed channel
	assert.NotPanics(t, func() {
		rec.Write(Record{ID: "late", Kind: KindActivity})
	})
	assert.Len(t, storage.all(), 5)
}

func TestRecorderStampsMissingTimestamp(t *testing.T) {
	storage := &memStorage{}
	rec := NewRecorder(storage, zap.NewNop(), testConfig())
	rec.Start()

	rec.Write(Record{ID: "r1", Kind: KindAlert, Title: "t"})
	rec.Stop()

	got := storage.all()
	require.Len(t, got, 1)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestRecorderBusIntegration(t *testing.T) {
	storage := &memStorage{}
	rec := NewRecorder(storage, zap.NewNop(), testConfig())
	bus := realtime.NewBus(zap.NewNop())
	rec.Attach(bus)
	rec.Start()

	resolved := time.Now()
	bus.Emit(domain.Event{
		Type:      domain.EventAlert,
		Payload:   domain.Alert{ID: "a1", Type: domain.AlertCritical, Title: "fleet degraded", Message: "2 agents down"},
		Timestamp: time.Now(),
	})
	bus.Emit(domain.Event{
		Type:      domain.EventAlert,
		Payload:   domain.Alert{ID: "a1", Type: domain.AlertCritical, Title: "fleet degraded", Acknowledged: true},
		Timestamp: time.Now(),
	})
	bus.Emit(domain.Event{
		Type:      domain.EventAlert,
		Payload:   domain.Alert{ID: "a1", Type: domain.AlertCritical, Title: "fleet degraded", ResolvedAt: &resolved},
		Timestamp: time.Now(),
	})
	bus.Emit(domain.Event{
		Type: domain.EventActivity,
		Payload: domain.ActivityUpdate{
			Items: []domain.ActivityItem{
				{ID: "old", Title: "already seen", Timestamp: time.Now()},
				{ID: "fresh", Title: "new activity", AgentName: "seo", Priority: domain.PriorityHigh, Timestamp: time.Now()},
			},
			// Only genuinely new feed entries go to history
			New: []domain.ActivityItem{
				{ID: "fresh", Title: "new activity", AgentName: "seo", Priority: domain.PriorityHigh, Timestamp: time.Now()},
			},
		},
		Timestamp: time.Now(),
	})

	rec.Stop()

	got := storage.all()
	require.Len(t, got, 4)

	statuses := make(map[string]int)
	for _, r := range got {
		if r.Kind == KindAlert {
			statuses[r.Status]++
		}
	}
	assert.Equal(t, map[string]int{
		StatusRaised:       1,
		StatusAcknowledged: 1,
		StatusResolved:     1,
	}, statuses)

	var activity *Record
	for i := range got {
		if got[i].Kind == KindActivity {
			activity = &got[i]
		}
	}
	require.NotNil(t, activity)
	assert.Equal(t, "fresh", activity.ID)
	assert.Equal(t, "seo", activity.AgentName)
	assert.Equal(t, string(domain.PriorityHigh), activity.Severity)
}
