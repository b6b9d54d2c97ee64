package domain

import "time"

// Priority — важность события в ленте активности.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ActivityItem — одно событие append-only ленты активности.
// Идентичность — поле ID: по нему определяются новые события
// (set difference с предыдущим закэшированным списком).
type ActivityItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AgentName   string    `json:"agent_name"`
	Priority    Priority  `json:"priority"`
	Timestamp   time.Time `json:"timestamp"`
	Category    string    `json:"category"`
	ImpactScore float64   `json:"impact_score"`
}

// ParsePriority приводит произвольную строку к валидному Priority.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s)
	default:
		return PriorityLow
	}
}
