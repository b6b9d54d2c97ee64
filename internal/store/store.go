// Package store содержит реактивное состояние дашборда: единственный
// источник правды для HTTP-слоя консоли. Состояние наполняется двумя
// путями: дельта-событиями с шины (realtime) и прямым RefreshAll
// (pull по требованию, срезанный окном кэша).
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/infra"
	"github.com/xela07ax/agentpulse/internal/realtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store struct {
	provider DataProvider
	bus      *realtime.Bus
	rt       *realtime.Controller
	cache    *SnapshotCache // nil = без L2
	clock    realtime.Clock
	logger   *zap.Logger
	metrics  *Metrics

	cacheWindow time.Duration
	maxAlerts   int
	maxActivity int
	persistEach time.Duration

	rosterIdx map[string]domain.AgentInfo
	roster    []domain.AgentInfo

	mu          sync.RWMutex
	snap        domain.DashboardSnapshot // Agents не заполняется, живет в agents
	agents      map[string]domain.DashboardAgent
	lastRefresh time.Time
	dirty       bool

	disposers []func()
}

func New(provider DataProvider, roster []domain.AgentInfo, bus *realtime.Bus, rt *realtime.Controller,
	cache *SnapshotCache, clock realtime.Clock, metrics *Metrics, logger *zap.Logger, cfg infra.StoreConfig) *Store {

	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	cacheWindow := cfg.CacheWindow
	if cacheWindow <= 0 {
		cacheWindow = 30 * time.Second
	}
	maxAlerts := cfg.MaxAlerts
	if maxAlerts <= 0 {
		maxAlerts = 10
	}
	maxActivity := cfg.MaxActivity
	if maxActivity <= 0 {
		maxActivity = 10
	}
	persistEach := cfg.SnapshotEvery
	if persistEach <= 0 {
		persistEach = 5 * time.Second
	}

	idx := make(map[string]domain.AgentInfo, len(roster))
	for _, info := range roster {
		idx[info.ID] = info
	}

	s := &Store{
		provider:    provider,
		bus:         bus,
		rt:          rt,
		cache:       cache,
		clock:       clock,
		logger:      logger.Named("store"),
		metrics:     metrics,
		cacheWindow: cacheWindow,
		maxAlerts:   maxAlerts,
		maxActivity: maxActivity,
		persistEach: persistEach,
		rosterIdx:   idx,
		roster:      roster,
		agents:      make(map[string]domain.DashboardAgent),
	}
	s.subscribe()
	return s
}

// subscribe подключает стор ко всем типам событий шины.
// Disposers сохраняются: Close отписывает стор целиком.
func (s *Store) subscribe() {
	s.disposers = append(s.disposers,
		s.bus.On(domain.EventSystemHealth, s.onSystemHealth),
		s.bus.On(domain.EventAgentHealth, s.onAgentHealth),
		s.bus.On(domain.EventBusinessMetrics, s.onBusinessMetrics),
		s.bus.On(domain.EventActivity, s.onActivity),
		s.bus.On(domain.EventAlert, s.onAlert),
		s.bus.On(domain.EventConnectionStatus, s.onConnectionStatus),
	)
}

// Close отписывает стор от шины. Состояние остается читаемым.
func (s *Store) Close() {
	for _, d := range s.disposers {
		d()
	}
	s.disposers = nil
}

// Hydrate подтягивает последний срез из L2-кэша (теплый старт:
// алерты и лента переживают рестарт процесса). Best-effort.
func (s *Store) Hydrate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	snap, ok, err := s.cache.Load(ctx)
	if err != nil {
		s.logger.Warn("snapshot hydration failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	s.mu.Lock()
	s.snap.SystemHealth = snap.SystemHealth
	s.snap.BusinessMetrics = snap.BusinessMetrics
	s.snap.RecentActivity = snap.RecentActivity
	s.snap.Alerts = snap.Alerts
	s.snap.LastUpdatedAt = snap.LastUpdatedAt
	for _, da := range snap.Agents {
		s.agents[da.Info.ID] = da
	}
	s.mu.Unlock()

	s.metrics.ActiveAlerts.Set(float64(len(snap.Alerts)))
	s.logger.Info("state hydrated from snapshot cache",
		zap.Int("agents", len(snap.Agents)),
		zap.Int("alerts", len(snap.Alerts)))
}

// Run — фоновая персистенция снапшота в L2 с заданной каденцией.
// Пишем только когда состояние менялось. Финальный срез уходит на выходе.
func (s *Store) Run(ctx context.Context) {
	if s.cache == nil {
		<-ctx.Done()
		return
	}

	ticker := s.clock.NewTicker(s.persistEach)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.persist(context.Background())
			return
		case <-ticker.C():
			s.mu.Lock()
			dirty := s.dirty
			s.dirty = false
			s.mu.Unlock()
			if dirty {
				s.persist(ctx)
			}
		}
	}
}

func (s *Store) persist(ctx context.Context) {
	if err := s.cache.Save(ctx, s.Snapshot()); err != nil {
		s.logger.Warn("snapshot persistence failed", zap.Error(err))
	}
}

// Snapshot возвращает глубокую копию текущего состояния.
// Агенты отсортированы по ID: стабильный порядок для API и кэша.
func (s *Store) Snapshot() domain.DashboardSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.snap
	if s.snap.SystemHealth != nil {
		sh := *s.snap.SystemHealth
		sh.Agents = append([]domain.AgentHealth(nil), s.snap.SystemHealth.Agents...)
		out.SystemHealth = &sh
	}
	if s.snap.BusinessMetrics != nil {
		bm := *s.snap.BusinessMetrics
		out.BusinessMetrics = &bm
	}
	out.RecentActivity = append([]domain.ActivityItem(nil), s.snap.RecentActivity...)
	out.Alerts = append([]domain.Alert(nil), s.snap.Alerts...)

	out.Agents = make([]domain.DashboardAgent, 0, len(s.agents))
	for _, da := range s.agents {
		out.Agents = append(out.Agents, da)
	}
	sort.Slice(out.Agents, func(i, j int) bool { return out.Agents[i].Info.ID < out.Agents[j].Info.ID })
	return out
}

// Alerts возвращает активные алерты (новые первыми).
func (s *Store) Alerts() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Alert(nil), s.snap.Alerts...)
}

// --- Управление realtime ---

// ConnectRealtime включает realtime-опрос (сбрасывает терминальное состояние).
func (s *Store) ConnectRealtime() {
	if s.rt != nil {
		s.rt.Connect()
	}
}

// DisconnectRealtime выключает realtime-опрос.
func (s *Store) DisconnectRealtime() {
	if s.rt != nil {
		s.rt.Disconnect()
	}
}

// RealtimeConnected сообщает текущее состояние realtime-соединения.
func (s *Store) RealtimeConnected() bool {
	return s.rt != nil && s.rt.IsConnected()
}

// --- Полное обновление (pull) ---

// RefreshAll дергает все три домена данных параллельно и применяет результаты.
// Без force повторный вызов внутри окна кэша возвращает текущее состояние,
// не трогая сеть. Отказ части источников не фатален: выжившие домены
// применяются, упавшие сохраняют предыдущие данные.
func (s *Store) RefreshAll(ctx context.Context, force bool) (domain.DashboardSnapshot, error) {
	now := s.clock.Now()

	s.mu.Lock()
	// Окно кэша не срезает обновление, пока стор пуст: первый успешный
	// набор данных важнее экономии трафика
	if !force && !s.lastRefresh.IsZero() && len(s.agents) > 0 && now.Sub(s.lastRefresh) < s.cacheWindow {
		s.mu.Unlock()
		s.metrics.RefreshSkipped.Inc()
		s.logger.Debug("refresh short-circuited by cache window")
		return s.Snapshot(), nil
	}
	// Маркер ставится при старте обновления, а не при завершении:
	// конкурентные вызовы внутри окна не устраивают повторный залп по флоту
	s.lastRefresh = now
	s.snap.IsLoading = true
	s.mu.Unlock()

	var (
		wg sync.WaitGroup

		health    domain.SystemHealthSnapshot
		perf      map[string]domain.AgentPerformance
		healthErr error

		biz    domain.BusinessMetricsSnapshot
		bizErr error

		activity    []domain.ActivityItem
		activityErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		health, perf, healthErr = s.provider.SystemHealth(ctx)
	}()
	go func() {
		defer wg.Done()
		biz, bizErr = s.provider.BusinessMetrics(ctx)
	}()
	go func() {
		defer wg.Done()
		activity, activityErr = s.provider.RecentActivity(ctx)
	}()
	wg.Wait()

	var failed []string
	if healthErr != nil {
		failed = append(failed, "health")
		s.logger.Warn("health refresh failed", zap.Error(healthErr))
		s.ensureFallbackRoster(now)
	} else {
		s.applySystemHealth(health)
		s.applyPerformance(perf)
	}
	if bizErr != nil {
		failed = append(failed, "metrics")
		s.logger.Warn("metrics refresh failed", zap.Error(bizErr))
	} else {
		s.applyBusinessMetrics(biz)
	}
	if activityErr != nil {
		failed = append(failed, "activity")
		s.logger.Warn("activity refresh failed", zap.Error(activityErr))
	} else {
		s.applyActivity(activity, true)
	}

	s.mu.Lock()
	s.snap.IsLoading = false
	s.snap.LastUpdatedAt = s.clock.Now()
	// Отказ любого домена виден оператору: Error сбрасывается только
	// полностью успешным обновлением
	switch {
	case len(failed) == 3:
		s.snap.Error = "all data sources unavailable"
	case len(failed) > 0:
		s.snap.Error = "refresh failed: " + strings.Join(failed, ", ")
	default:
		s.snap.Error = ""
	}
	s.dirty = true
	s.mu.Unlock()

	switch {
	case len(failed) == 3:
		s.metrics.RefreshTotal.WithLabelValues("failure").Inc()
		return s.Snapshot(), fmt.Errorf("store: refresh failed: %s", strings.Join(failed, ", "))
	case len(failed) > 0:
		s.metrics.RefreshTotal.WithLabelValues("partial").Inc()
	default:
		s.metrics.RefreshTotal.WithLabelValues("success").Inc()
	}
	return s.Snapshot(), nil
}

// --- Алерты ---

// AcknowledgeAlert помечает алерт подтвержденным. Возвращает false,
// если алерта с таким ID нет в активном списке.
func (s *Store) AcknowledgeAlert(id string) bool {
	s.mu.Lock()
	var acked *domain.Alert
	for i := range s.snap.Alerts {
		if s.snap.Alerts[i].ID == id {
			s.snap.Alerts[i].Acknowledged = true
			a := s.snap.Alerts[i]
			acked = &a
			break
		}
	}
	if acked != nil {
		s.dirty = true
	}
	s.mu.Unlock()

	if acked == nil {
		return false
	}
	// Зеркалим изменение на шину: история алертов пишется с нее
	s.bus.Emit(domain.Event{Type: domain.EventAlert, Payload: *acked, Timestamp: s.clock.Now()})
	return true
}

// DismissAlert убирает алерт из активного списка, проставляя ResolvedAt.
func (s *Store) DismissAlert(id string) bool {
	now := s.clock.Now()

	s.mu.Lock()
	var dismissed *domain.Alert
	for i := range s.snap.Alerts {
		if s.snap.Alerts[i].ID == id {
			a := s.snap.Alerts[i]
			a.ResolvedAt = &now
			dismissed = &a
			s.snap.Alerts = append(s.snap.Alerts[:i], s.snap.Alerts[i+1:]...)
			break
		}
	}
	if dismissed != nil {
		s.dirty = true
		s.metrics.ActiveAlerts.Set(float64(len(s.snap.Alerts)))
	}
	s.mu.Unlock()

	if dismissed == nil {
		return false
	}
	s.bus.Emit(domain.Event{Type: domain.EventAlert, Payload: *dismissed, Timestamp: now})
	return true
}

// RaiseAlert публикует ручной алерт (операторский или пороговый).
func (s *Store) RaiseAlert(t domain.AlertType, title, message string) domain.Alert {
	a := domain.Alert{
		ID:        uuid.New().String(),
		Type:      t,
		Title:     title,
		Message:   message,
		Timestamp: s.clock.Now(),
	}
	s.bus.Emit(domain.Event{Type: domain.EventAlert, Payload: a, Timestamp: a.Timestamp})
	return a
}

// --- Обработчики событий шины ---

func (s *Store) onSystemHealth(e domain.Event) {
	snap, ok := e.Payload.(domain.SystemHealthSnapshot)
	if !ok {
		s.logger.Warn("unexpected payload type", zap.String("event_type", string(e.Type)))
		return
	}
	s.applySystemHealth(snap)
	s.metrics.EventsApplied.WithLabelValues(string(e.Type)).Inc()
}

func (s *Store) onAgentHealth(e domain.Event) {
	h, ok := e.Payload.(domain.AgentHealth)
	if !ok {
		s.logger.Warn("unexpected payload type", zap.String("event_type", string(e.Type)))
		return
	}
	s.mu.Lock()
	s.mergeHealthLocked(h)
	s.snap.LastUpdatedAt = e.Timestamp
	s.dirty = true
	s.mu.Unlock()
	s.metrics.EventsApplied.WithLabelValues(string(e.Type)).Inc()
}

func (s *Store) onBusinessMetrics(e domain.Event) {
	bm, ok := e.Payload.(domain.BusinessMetricsSnapshot)
	if !ok {
		s.logger.Warn("unexpected payload type", zap.String("event_type", string(e.Type)))
		return
	}
	s.applyBusinessMetrics(bm)
	s.metrics.EventsApplied.WithLabelValues(string(e.Type)).Inc()
}

func (s *Store) onActivity(e domain.Event) {
	u, ok := e.Payload.(domain.ActivityUpdate)
	if !ok {
		s.logger.Warn("unexpected payload type", zap.String("event_type", string(e.Type)))
		return
	}
	// Алерты по high-priority новичкам уже поднял поллер
	s.applyActivity(u.Items, false)
	s.metrics.EventsApplied.WithLabelValues(string(e.Type)).Inc()
}

func (s *Store) onAlert(e domain.Event) {
	a, ok := e.Payload.(domain.Alert)
	if !ok {
		s.logger.Warn("unexpected payload type", zap.String("event_type", string(e.Type)))
		return
	}
	s.mu.Lock()
	s.upsertAlertLocked(a)
	s.dirty = true
	s.mu.Unlock()
	s.metrics.EventsApplied.WithLabelValues(string(e.Type)).Inc()
}

func (s *Store) onConnectionStatus(e domain.Event) {
	cs, ok := e.Payload.(domain.ConnectionStatus)
	if !ok {
		s.logger.Warn("unexpected payload type", zap.String("event_type", string(e.Type)))
		return
	}
	s.mu.Lock()
	if cs.Connected {
		s.snap.Error = ""
	} else if cs.Reason == "real-time connection lost" {
		// Терминальный разрыв показываем оператору на дашборде
		s.snap.Error = cs.Reason
	}
	s.dirty = true
	s.mu.Unlock()
	s.metrics.EventsApplied.WithLabelValues(string(e.Type)).Inc()
}

// --- Применение данных ---

func (s *Store) applySystemHealth(snap domain.SystemHealthSnapshot) {
	s.mu.Lock()
	s.snap.SystemHealth = &snap
	for _, h := range snap.Agents {
		s.mergeHealthLocked(h)
	}
	s.snap.LastUpdatedAt = snap.Timestamp
	s.dirty = true
	s.mu.Unlock()
}

// mergeHealthLocked — слияние по полям: health-событие обновляет только
// здоровье агента, производительность (response time, success rate,
// tasks completed, last active) сохраняется от предыдущих измерений.
func (s *Store) mergeHealthLocked(h domain.AgentHealth) {
	da, ok := s.agents[h.AgentID]
	if !ok {
		da = domain.DashboardAgent{Info: s.agentInfo(h.AgentID)}
	}
	da.Health = h
	s.agents[h.AgentID] = da
}

func (s *Store) applyPerformance(perf map[string]domain.AgentPerformance) {
	if len(perf) == 0 {
		return
	}
	s.mu.Lock()
	for id, p := range perf {
		da, ok := s.agents[id]
		if !ok {
			da = domain.DashboardAgent{Info: s.agentInfo(id)}
		}
		da.Performance = p
		s.agents[id] = da
	}
	s.dirty = true
	s.mu.Unlock()
}

func (s *Store) applyBusinessMetrics(bm domain.BusinessMetricsSnapshot) {
	s.mu.Lock()
	s.snap.BusinessMetrics = &bm
	s.snap.LastUpdatedAt = bm.GeneratedAt
	s.dirty = true
	s.mu.Unlock()
}

// applyActivity заменяет окно ленты. deriveAlerts=true на pull-пути:
// там поллера нет и алерты по high-priority новичкам поднимает сам стор.
func (s *Store) applyActivity(items []domain.ActivityItem, deriveAlerts bool) {
	window := append([]domain.ActivityItem(nil), items...)
	sort.SliceStable(window, func(i, j int) bool { return window[i].Timestamp.After(window[j].Timestamp) })
	if len(window) > s.maxActivity {
		window = window[:s.maxActivity]
	}

	s.mu.Lock()
	seen := make(map[string]struct{}, len(s.snap.RecentActivity))
	for _, it := range s.snap.RecentActivity {
		seen[it.ID] = struct{}{}
	}
	var fresh []domain.ActivityItem
	for _, it := range window {
		if _, ok := seen[it.ID]; !ok {
			fresh = append(fresh, it)
		}
	}
	s.snap.RecentActivity = window
	s.snap.LastUpdatedAt = s.clock.Now()
	s.dirty = true
	s.mu.Unlock()

	if !deriveAlerts {
		return
	}
	for _, it := range fresh {
		if it.Priority != domain.PriorityHigh {
			continue
		}
		a := domain.NewActivityAlert(it, uuid.New().String(), s.clock.Now())
		// Через шину: подписка стора применит алерт, история его запишет
		s.bus.Emit(domain.Event{Type: domain.EventAlert, Payload: a, Timestamp: a.Timestamp})
	}
}

// upsertAlertLocked — жизненный цикл алерта в активном списке:
// resolved уходит, существующий ID обновляется на месте,
// новый встает в голову списка с ограничением окна.
func (s *Store) upsertAlertLocked(a domain.Alert) {
	if a.ResolvedAt != nil {
		for i := range s.snap.Alerts {
			if s.snap.Alerts[i].ID == a.ID {
				s.snap.Alerts = append(s.snap.Alerts[:i], s.snap.Alerts[i+1:]...)
				break
			}
		}
		s.metrics.ActiveAlerts.Set(float64(len(s.snap.Alerts)))
		return
	}

	for i := range s.snap.Alerts {
		if s.snap.Alerts[i].ID == a.ID {
			s.snap.Alerts[i] = a
			return
		}
	}

	s.snap.Alerts = append([]domain.Alert{a}, s.snap.Alerts...)
	if len(s.snap.Alerts) > s.maxAlerts {
		s.snap.Alerts = s.snap.Alerts[:s.maxAlerts]
	}
	s.metrics.ActiveAlerts.Set(float64(len(s.snap.Alerts)))
}

// ensureFallbackRoster подкладывает статический ростер с unknown-статусом,
// если живых данных по агентам нет вообще.
func (s *Store) ensureFallbackRoster(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.agents) > 0 {
		return
	}
	for _, da := range fallbackAgents(s.roster, now) {
		s.agents[da.Info.ID] = da
	}
	s.dirty = true
}

func (s *Store) agentInfo(id string) domain.AgentInfo {
	if info, ok := s.rosterIdx[id]; ok {
		return info
	}
	return domain.AgentInfo{ID: id, Name: id, Category: "general"}
}
