package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Полные обновления: сколько дошло до сети, сколько срезано окном кэша
	RefreshTotal   *prometheus.CounterVec
	RefreshSkipped prometheus.Counter

	// События шины, примененные к состоянию
	EventsApplied *prometheus.CounterVec

	// Текущее число активных алертов
	ActiveAlerts prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RefreshTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentpulse_store_refresh_total",
			Help: "Total number of full data refreshes by outcome.",
		}, []string{"outcome"}),

		RefreshSkipped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agentpulse_store_refresh_skipped_total",
			Help: "Refreshes short-circuited by the cache window.",
		}),

		EventsApplied: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentpulse_store_events_applied_total",
			Help: "Bus events applied to the dashboard state.",
		}, []string{"type"}),

		ActiveAlerts: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agentpulse_store_active_alerts",
			Help: "Number of alerts currently visible on the dashboard.",
		}),
	}
}
