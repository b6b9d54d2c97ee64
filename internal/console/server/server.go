package server

import (
	"net/http"

	"github.com/xela07ax/agentpulse/internal/console/handler"
	"github.com/xela07ax/agentpulse/internal/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Реестр метрик всего процесса: экспортируется на /metrics
	registry *prometheus.Registry

	// Обработчики бизнес-доменов
	dashHandler     *handler.DashboardHandler // /api/v1/dashboard
	alertHandler    *handler.AlertHandler     // /v1/alerts
	realtimeHandler *handler.RealtimeHandler  // /v1/realtime
}

// NewConsoleServer инициализирует сервер консоли мониторинга со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	registry *prometheus.Registry,
	dashH *handler.DashboardHandler,
	alertH *handler.AlertHandler,
	realtimeH *handler.RealtimeHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		cfg:             cfg,
		registry:        registry,
		dashHandler:     dashH,
		alertHandler:    alertH,
		realtimeHandler: realtimeH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. Служебные роуты ---
	r.Group(func(r chi.Router) {
		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if s.registry != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. API консоли ---
	r.Group(func(r chi.Router) {
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/dashboard", s.dashHandler.Get) // Текущий срез без похода в сеть
			r.Get("/agents", s.dashHandler.Agents) // Таблица агентов

			// Алерты (Acknowledge/Dismiss)
			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", s.alertHandler.List) // Активные алерты
				r.Route("/{id}", func(r chi.Router) {
					r.Post("/ack", s.alertHandler.Acknowledge)
					r.Post("/dismiss", s.alertHandler.Dismiss)
				})
			})
		})

		// Полное обновление всех доменов данных (?force=true)
		r.Post("/v1/refresh", s.dashHandler.Refresh)

		// Управление realtime-контуром
		r.Route("/v1/realtime", func(r chi.Router) {
			r.Get("/status", s.realtimeHandler.Status)
			r.Post("/connect", s.realtimeHandler.Connect)
			r.Post("/disconnect", s.realtimeHandler.Disconnect)
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
