package domain

import "time"

// AlertType — серьезность алерта.
type AlertType string

const (
	AlertCritical AlertType = "critical"
	AlertWarning  AlertType = "warning"
	AlertInfo     AlertType = "info"
)

// Alert — оповещение оператора.
// Жизненный цикл: создан (порог или high-priority активность) ->
// опционально подтвержден -> опционально разрешен (уходит из активного
// списка; долговременная история живет в internal/history).
type Alert struct {
	ID           string     `json:"id"`
	Type         AlertType  `json:"type"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Timestamp    time.Time  `json:"timestamp"`
	Acknowledged bool       `json:"acknowledged"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// NewActivityAlert поднимает алерт из high-priority события активности.
// Impact 8+ считается критическим, остальное — warning.
func NewActivityAlert(it ActivityItem, id string, now time.Time) Alert {
	t := AlertWarning
	if it.ImpactScore >= 8 {
		t = AlertCritical
	}
	return Alert{
		ID:        id,
		Type:      t,
		Title:     "High-priority activity: " + it.Title,
		Message:   it.Description + " (agent: " + it.AgentName + ")",
		Timestamp: now,
	}
}
