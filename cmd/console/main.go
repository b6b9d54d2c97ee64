package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xela07ax/agentpulse/internal/console/handler"
	"github.com/xela07ax/agentpulse/internal/console/server"
	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/gateway"
	"github.com/xela07ax/agentpulse/internal/history"
	historypg "github.com/xela07ax/agentpulse/internal/history/postgres"
	"github.com/xela07ax/agentpulse/internal/infra"
	"github.com/xela07ax/agentpulse/internal/realtime"
	"github.com/xela07ax/agentpulse/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	reg := prometheus.NewRegistry()

	// 3. Шлюз агентов
	registry, err := gateway.NewRegistry(cfg.Gateway.Agents)
	if err != nil {
		logger.Fatal("invalid agent registry", zap.Error(err))
	}
	gw := gateway.New(registry, cfg.Gateway, logger, gateway.NewMetrics(reg))
	provider := store.NewProvider(gw, logger)

	// 4. Realtime-контур: шина -> поллер -> контроллер переподключений
	clock := realtime.SystemClock{}
	bus := realtime.NewBus(logger)
	rtMetrics := realtime.NewMetrics(reg)

	loops := []realtime.LoopConfig{
		{
			Name:     "health",
			Kind:     realtime.LoopPerAgent,
			Interval: cfg.Realtime.HealthInterval,
			Fetch: func(ctx context.Context) (any, error) {
				snap, _, ferr := provider.SystemHealth(ctx)
				return snap, ferr
			},
		},
		{
			Name:      "metrics",
			Kind:      realtime.LoopSnapshot,
			Interval:  cfg.Realtime.MetricsInterval,
			EventType: domain.EventBusinessMetrics,
			Fetch: func(ctx context.Context) (any, error) {
				return provider.BusinessMetrics(ctx)
			},
		},
		{
			Name:     "activity",
			Kind:     realtime.LoopActivity,
			Interval: cfg.Realtime.ActivityInterval,
			Fetch: func(ctx context.Context) (any, error) {
				return provider.RecentActivity(ctx)
			},
		},
	}

	poller := realtime.NewPoller(clock, bus, rtMetrics, logger, loops, cfg.Store.MaxActivity)
	controller := realtime.NewController(poller, bus, clock, rtMetrics, logger, cfg.Realtime)

	// 5. Реактивный стор + L2-кэш снапшота
	snapCache := store.NewSnapshotCache(rdb, cfg.Store.SnapshotTTL, logger)
	st := store.New(provider, registry.Roster(), bus, controller, snapCache, clock,
		store.NewMetrics(reg), logger, cfg.Store)
	st.Hydrate(appCtx)
	go st.Run(appCtx)

	// 6. История (опционально): батч-запись алертов и активности в Postgres
	var recorder *history.Recorder
	if cfg.History.Enabled {
		repo, rerr := historypg.NewHistoryRepo(cfg.Database.URL, cfg.Database.MaxConns)
		if rerr != nil {
			logger.Fatal("failed to open history database", zap.Error(rerr))
		}
		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		if perr := repo.Ping(pingCtx); perr != nil {
			logger.Fatal("history database unreachable", zap.Error(perr))
		}
		pingCancel()

		recorder = history.NewRecorder(repo, logger, cfg.History)
		recorder.Attach(bus)
		recorder.Start()
		defer repo.Close()
	}

	// 7. Запуск realtime
	st.ConnectRealtime()

	// 8. HTTP Server
	dashH := handler.NewDashboardHandler(st)
	alertH := handler.NewAlertHandler(st)
	realtimeH := handler.NewRealtimeHandler(st)
	console := server.NewConsoleServer(cfg, logger, reg, dashH, alertH, realtimeH)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      console,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if serr := srv.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(serr))
		}
	}()

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("console stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Порядок важен: сначала гасим источники событий, потом слушателей
	st.DisconnectRealtime()
	st.Close()
	if recorder != nil {
		recorder.Stop()
	}
	cancel()

	logger.Info("console exited properly")
}
