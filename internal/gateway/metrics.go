package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени занял вызов агента (включая ретраи)
	CallDuration *prometheus.HistogramVec

	// Traffic: общее кол-во вызовов
	TotalCalls *prometheus.CounterVec

	// Errors: отказы по агентам
	FailedCalls *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		CallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentpulse_gateway_call_duration_seconds",
			Help:    "Histogram of remote agent call latencies.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"agent_id", "action", "outcome"}),

		TotalCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentpulse_gateway_calls_total",
			Help: "Total number of remote agent calls.",
		}, []string{"agent_id", "action"}),

		FailedCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentpulse_gateway_call_failures_total",
			Help: "Total number of failed remote agent calls by reason.",
		}, []string{"agent_id", "reason"}), // reason: timeout, status, network, unknown_agent
	}
}
