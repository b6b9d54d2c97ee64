package domain

import "time"

// SystemHealthSnapshot — агрегат здоровья флота за один цикл опроса.
// Инвариант (best-effort): TotalAgents = Healthy + Error + Missing;
// отказы шлюза учитываются как ErrorAgents.
type SystemHealthSnapshot struct {
	Timestamp     time.Time     `json:"timestamp"`
	TotalAgents   int           `json:"total_agents"`
	HealthyAgents int           `json:"healthy_agents"`
	ErrorAgents   int           `json:"error_agents"`
	MissingAgents int           `json:"missing_agents"`
	Agents        []AgentHealth `json:"agents"`
}

// Degraded сообщает, есть ли в срезе хоть один нездоровый агент.
func (s *SystemHealthSnapshot) Degraded() bool {
	return s.ErrorAgents > 0 || s.MissingAgents > 0
}
