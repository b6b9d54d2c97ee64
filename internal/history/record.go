package history

import "time"

// Kind — разновидность записи истории.
type Kind string

const (
	KindAlert    Kind = "alert"
	KindActivity Kind = "activity"
)

// Статусы жизненного цикла алерта в истории.
const (
	StatusRaised       = "raised"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Record — одна запись долговременной истории дашборда.
// Активный список в сторе ограничен окном в 10 позиций,
// все что из него вытесняется — живет только здесь.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Status    string    `json:"status,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail,omitempty"`
	Severity  string    `json:"severity,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
