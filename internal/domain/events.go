package domain

import "time"

// EventType — имя типа события на шине.
type EventType string

const (
	EventSystemHealth     EventType = "system-health-update"
	EventAgentHealth      EventType = "agent-health-update"
	EventBusinessMetrics  EventType = "business-metrics-update"
	EventActivity         EventType = "activity-update"
	EventAlert            EventType = "alert-update"
	EventConnectionStatus EventType = "connection-status"
)

// Event — дельта-событие: несет только новое значение одного логического ключа.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityUpdate — payload события activity-update.
// Items — полное ограниченное окно (новые первыми),
// New — только впервые появившиеся записи этого цикла.
type ActivityUpdate struct {
	Items []ActivityItem `json:"items"`
	New   []ActivityItem `json:"new"`
}

// ConnectionStatus — payload события connection-status.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}
