package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/gateway"

	"go.uber.org/zap"
)

// DataProvider — источник трех доменов данных дашборда.
// Стор и поллер не знают про HTTP и соглашения вызова:
// вся сетевые детали остаются за этим интерфейсом.
type DataProvider interface {
	// SystemHealth возвращает агрегат здоровья флота и (при fan-out пути)
	// метрики производительности, извлеченные из инсайтов агентов.
	SystemHealth(ctx context.Context) (domain.SystemHealthSnapshot, map[string]domain.AgentPerformance, error)
	BusinessMetrics(ctx context.Context) (domain.BusinessMetricsSnapshot, error)
	RecentActivity(ctx context.Context) ([]domain.ActivityItem, error)
}

const (
	metricsAgentID = "analytics"
	metricsAction  = "business_metrics"
	activityAction = "recent_activity"
)

// Provider — продакшен-реализация DataProvider поверх шлюза агентов.
type Provider struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

func NewProvider(gw *gateway.Gateway, logger *zap.Logger) *Provider {
	return &Provider{gw: gw, logger: logger.Named("provider")}
}

// Roster отдает статические метаданные флота для fallback-синтеза.
func (p *Provider) Roster() []domain.AgentInfo {
	return p.gw.Registry().Roster()
}

func (p *Provider) SystemHealth(ctx context.Context) (domain.SystemHealthSnapshot, map[string]domain.AgentPerformance, error) {
	return p.gw.AllAgentsHealth(ctx)
}

func (p *Provider) BusinessMetrics(ctx context.Context) (domain.BusinessMetricsSnapshot, error) {
	res := p.gw.Call(ctx, metricsAgentID, metricsAction, nil)
	if !res.Success {
		return domain.BusinessMetricsSnapshot{}, fmt.Errorf("provider: business metrics call failed: %s", res.Error)
	}
	return decodeMetrics(res.Insights, res.Timestamp)
}

func (p *Provider) RecentActivity(ctx context.Context) ([]domain.ActivityItem, error) {
	res := p.gw.Call(ctx, p.activityAgentID(), activityAction, nil)
	if !res.Success {
		return nil, fmt.Errorf("provider: recent activity call failed: %s", res.Error)
	}
	return decodeActivity(res.Insights, res.Timestamp), nil
}

// activityAgentID — лента активности идет через оркестратор, если он
// объявлен (у него консолидированный взгляд на флот), иначе через analytics.
func (p *Provider) activityAgentID() string {
	if orch, ok := p.gw.Registry().Orchestrator(); ok {
		return orch.ID
	}
	return metricsAgentID
}

// decodeMetrics терпимо разбирает бизнес-метрики из инсайтов агента:
// remarshal через JSON, незнакомые тренды схлопываются в stable.
func decodeMetrics(insights map[string]any, ts time.Time) (domain.BusinessMetricsSnapshot, error) {
	raw, err := json.Marshal(insights)
	if err != nil {
		return domain.BusinessMetricsSnapshot{}, fmt.Errorf("provider: marshal insights: %w", err)
	}
	var snap domain.BusinessMetricsSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.BusinessMetricsSnapshot{}, fmt.Errorf("provider: malformed metrics payload: %w", err)
	}

	snap.Leads.Trend = domain.ParseTrend(string(snap.Leads.Trend))
	snap.Cost.Trend = domain.ParseTrend(string(snap.Cost.Trend))
	snap.Conversion.Trend = domain.ParseTrend(string(snap.Conversion.Trend))
	snap.Revenue.Trend = domain.ParseTrend(string(snap.Revenue.Trend))
	if snap.GeneratedAt.IsZero() {
		snap.GeneratedAt = ts
	}
	return snap, nil
}

// decodeActivity вытаскивает ленту из инсайтов.
// Записи без ID получают детерминированный суррогат title|timestamp:
// от стабильности ID зависит set difference в поллере.
func decodeActivity(insights map[string]any, ts time.Time) []domain.ActivityItem {
	list, ok := insights["activities"].([]any)
	if !ok {
		if list, ok = insights["items"].([]any); !ok {
			return nil
		}
	}

	raw, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	var items []domain.ActivityItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	for i := range items {
		if items[i].ID == "" {
			items[i].ID = fmt.Sprintf("%s|%s", items[i].Title, items[i].Timestamp.Format(time.RFC3339))
		}
		items[i].Priority = domain.ParsePriority(string(items[i].Priority))
		if items[i].Timestamp.IsZero() {
			items[i].Timestamp = ts
		}
	}
	return items
}
