package domain

import "time"

// DashboardSnapshot — единый срез состояния дашборда, который отдает стор.
// Поля заполняются независимо: отказ одного домена данных
// не обнуляет остальные (partial-failure tolerance).
type DashboardSnapshot struct {
	SystemHealth    *SystemHealthSnapshot    `json:"system_health,omitempty"`
	BusinessMetrics *BusinessMetricsSnapshot `json:"business_metrics,omitempty"`
	Agents          []DashboardAgent         `json:"agents"`
	RecentActivity  []ActivityItem           `json:"recent_activity"`
	Alerts          []Alert                  `json:"alerts"`
	LastUpdatedAt   time.Time                `json:"last_updated_at"`
	IsLoading       bool                     `json:"is_loading"`
	Error           string                   `json:"error,omitempty"`
}
