package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: циклы опроса по каждому лупу
	PollCycles *prometheus.CounterVec

	// Errors: неуспешные фетчи
	PollFailures *prometheus.CounterVec

	// Latency: длительность одного цикла (fetch + compare)
	PollDuration *prometheus.HistogramVec

	// Дельты, ушедшие на шину
	EventsEmitted *prometheus.CounterVec

	// Подавленные дубли (контент не изменился)
	EventsSuppressed *prometheus.CounterVec

	// Попытки переподключения
	ReconnectAttempts prometheus.Counter

	// Состояние соединения (0 - разорвано, 1 - активно)
	Connected prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		PollCycles: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentpulse_poll_cycles_total",
			Help: "Total number of polling cycles per loop.",
		}, []string{"loop"}),

		PollFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentpulse_poll_failures_total",
			Help: "Total number of failed polling cycles per loop.",
		}, []string{"loop"}),

		PollDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentpulse_poll_duration_seconds",
			Help:    "Histogram of polling cycle durations.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"loop"}),

		EventsEmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentpulse_events_emitted_total",
			Help: "Total number of delta events published to the bus.",
		}, []string{"type"}),

		EventsSuppressed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentpulse_events_suppressed_total",
			Help: "Total number of unchanged poll results suppressed by content hash.",
		}, []string{"loop"}),

		ReconnectAttempts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agentpulse_reconnect_attempts_total",
			Help: "Total number of reconnection attempts after polling failures.",
		}),

		Connected: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agentpulse_realtime_connected",
			Help: "Whether the realtime polling engine is connected (0=down, 1=up).",
		}),
	}
}
