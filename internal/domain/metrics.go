package domain

import "time"

// Trend — направление изменения KPI между циклами.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// BusinessMetricsSnapshot — бизнес-метрики маркетингового флота.
// Генерируется целиком каждый цикл: частичных обновлений полей не бывает.
type BusinessMetricsSnapshot struct {
	Leads       LeadMetrics       `json:"leads"`
	Cost        CostMetrics       `json:"cost"`
	Conversion  ConversionMetrics `json:"conversion"`
	Revenue     RevenueMetrics    `json:"revenue"`
	GeneratedAt time.Time         `json:"generated_at"`
}

type LeadMetrics struct {
	Total     int   `json:"total"`
	New       int   `json:"new"`
	Qualified int   `json:"qualified"`
	Trend     Trend `json:"trend"`
}

type CostMetrics struct {
	TotalSpend  float64 `json:"total_spend"`
	CostPerLead float64 `json:"cost_per_lead"`
	Trend       Trend   `json:"trend"`
}

type ConversionMetrics struct {
	Rate  float64 `json:"rate"`
	Total int     `json:"total"`
	Trend Trend   `json:"trend"`
}

type RevenueMetrics struct {
	Total float64 `json:"total"`
	ROI   float64 `json:"roi"`
	Trend Trend   `json:"trend"`
}

// ParseTrend приводит произвольную строку из ответа агента к валидному Trend.
// Незнакомые значения схлопываются в stable (tolerant decode).
func ParseTrend(s string) Trend {
	switch Trend(s) {
	case TrendUp, TrendDown, TrendStable:
		return Trend(s)
	default:
		return TrendStable
	}
}
