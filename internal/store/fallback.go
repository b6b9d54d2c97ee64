package store

import (
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
)

// fallbackAgents синтезирует таблицу агентов из статического реестра,
// когда сеть недоступна и живых данных нет вообще.
// Статус unknown: мы честно не знаем, живы ли агенты,
// но дашборд не должен оставаться пустым.
func fallbackAgents(roster []domain.AgentInfo, now time.Time) []domain.DashboardAgent {
	out := make([]domain.DashboardAgent, 0, len(roster))
	for _, info := range roster {
		out = append(out, domain.DashboardAgent{
			Info: info,
			Health: domain.AgentHealth{
				AgentID:   info.ID,
				Status:    domain.StatusUnknown,
				Timestamp: now,
			},
		})
	}
	return out
}
