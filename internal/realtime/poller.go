package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoopKind определяет алгоритм сравнения результата фетча с кэшем.
type LoopKind int

const (
	// LoopSnapshot — хэш всего значения целиком (дефолт)
	LoopSnapshot LoopKind = iota
	// LoopPerAgent — по-агентное сравнение: одно событие на каждого
	// изменившегося агента внутри цикла, плюс агрегат отдельным ключом
	LoopPerAgent
	// LoopActivity — set difference по ID: лента append-oriented,
	// хэшировать ее целиком бессмысленно
	LoopActivity
)

// FetchFunc достает текущее значение домена данных.
// Возвращаемый тип диктуется Kind лупа: SystemHealthSnapshot для LoopPerAgent,
// []ActivityItem для LoopActivity, произвольное значение для LoopSnapshot.
type FetchFunc func(ctx context.Context) (any, error)

// LoopConfig — декларация одного независимого цикла опроса.
type LoopConfig struct {
	Name      string
	Kind      LoopKind
	Interval  time.Duration
	EventType domain.EventType // тип события для LoopSnapshot
	Fetch     FetchFunc
}

// cacheEntry — запись кэша сравнения. Владеет кэшем исключительно поллер:
// стор читает только опубликованные события и сюда не лазит.
type cacheEntry struct {
	Hash      string
	UpdatedAt time.Time
}

// Poller ведет N именованных циклов опроса с независимыми каденциями.
// Событие уходит на шину только когда контент-хэш результата отличается
// от закэшированного для того же логического ключа.
type Poller struct {
	clock       Clock
	bus         *Bus
	logger      *zap.Logger
	metrics     *Metrics
	loops       []LoopConfig
	maxActivity int

	// Хуки контроллера переподключений
	connected func() bool
	onFailure func(loop string, err error)
	onSuccess func(loop string)

	mu           sync.Mutex
	cache        map[string]cacheEntry
	seenActivity map[string]struct{} // ID предыдущего списка активности
	gen          uint64              // поколение кэша: результаты старых поколений отбрасываются

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func NewPoller(clock Clock, bus *Bus, metrics *Metrics, logger *zap.Logger, loops []LoopConfig, maxActivity int) *Poller {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if maxActivity <= 0 {
		maxActivity = 10
	}
	return &Poller{
		clock:        clock,
		bus:          bus,
		logger:       logger.Named("poller"),
		metrics:      metrics,
		loops:        loops,
		maxActivity:  maxActivity,
		cache:        make(map[string]cacheEntry),
		seenActivity: nil,
	}
}

// SetHooks подключает контроллер: проверку соединения перед эмиссией
// и сигналы об успехе/провале цикла.
func (p *Poller) SetHooks(connected func() bool, onFailure func(string, error), onSuccess func(string)) {
	p.connected = connected
	p.onFailure = onFailure
	p.onSuccess = onSuccess
}

// Start запускает все лупы. Первый опрос каждого лупа уходит сразу,
// не дожидаясь первого тика — подписчики получают состояние без задержки.
func (p *Poller) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running {
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for _, lc := range p.loops {
		go p.runLoop(ctx, lc)
	}
	p.logger.Info("polling loops started", zap.Int("loops", len(p.loops)))
}

// Stop отменяет таймеры всех лупов. Уже диспатченные фетчи не прерываются:
// их результаты просто отбрасываются по поколению кэша и проверке isConnected.
func (p *Poller) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.cancel()
	p.logger.Info("polling loops stopped")
}

// ResetCache сбрасывает кэш сравнения: следующий опрос после реконнекта
// всегда эмитит свежие дельты по всем ключам, даже если данные не менялись.
func (p *Poller) ResetCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.cache = make(map[string]cacheEntry)
	p.seenActivity = nil
}

func (p *Poller) runLoop(ctx context.Context, lc LoopConfig) {
	// Немедленный первый опрос
	p.cycle(ctx, lc)

	ticker := p.clock.NewTicker(lc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.cycle(ctx, lc)
		}
	}
}

// cycle — один проход state machine лупа:
// Polling -> Compare -> {Unchanged | Changed: Emit+CacheUpdate}.
func (p *Poller) cycle(ctx context.Context, lc LoopConfig) {
	start := p.clock.Now()
	p.metrics.PollCycles.WithLabelValues(lc.Name).Inc()

	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()

	v, err := lc.Fetch(ctx)
	p.metrics.PollDuration.WithLabelValues(lc.Name).Observe(p.clock.Now().Sub(start).Seconds())

	if err != nil {
		p.metrics.PollFailures.WithLabelValues(lc.Name).Inc()
		// Провал одного лупа не фатален и не трогает соседние лупы —
		// решение об остановке принимает контроллер
		p.logger.Warn("poll cycle failed",
			zap.String("loop", lc.Name),
			zap.Error(err))
		if p.onFailure != nil && p.isConnected() {
			p.onFailure(lc.Name, err)
		}
		return
	}

	// Результаты, прилетевшие после disconnect, не сравниваются и не эмитятся
	if !p.isConnected() {
		p.logger.Debug("discarding poll result: not connected", zap.String("loop", lc.Name))
		return
	}

	if p.onSuccess != nil {
		p.onSuccess(lc.Name)
	}

	switch lc.Kind {
	case LoopPerAgent:
		p.handleHealth(lc, gen, v)
	case LoopActivity:
		p.handleActivity(lc, gen, v)
	default:
		p.emitIfChanged(lc.Name, gen, lc.Name, lc.EventType, v)
	}
}

func (p *Poller) isConnected() bool {
	return p.connected == nil || p.connected()
}

// emitIfChanged сравнивает контент-хэш значения с кэшем ключа
// и публикует дельту только при реальном изменении.
func (p *Poller) emitIfChanged(loop string, gen uint64, key string, et domain.EventType, v any) bool {
	h := ContentHash(v)

	p.mu.Lock()
	if gen != p.gen {
		// Результат старого поколения (до ResetCache) — отбрасываем
		p.mu.Unlock()
		return false
	}
	prev, ok := p.cache[key]
	if ok && prev.Hash == h {
		p.mu.Unlock()
		p.metrics.EventsSuppressed.WithLabelValues(loop).Inc()
		return false
	}
	p.cache[key] = cacheEntry{Hash: h, UpdatedAt: p.clock.Now()}
	p.mu.Unlock()

	p.bus.Emit(domain.Event{Type: et, Payload: v, Timestamp: p.clock.Now()})
	p.metrics.EventsEmitted.WithLabelValues(string(et)).Inc()
	return true
}

// handleHealth — по-агентное сравнение: каждый агент хэшируется под своим
// ключом, в одном цикле может уйти несколько agent-health-update (по одному
// на изменившегося агента), а не один батч на весь срез.
func (p *Poller) handleHealth(lc LoopConfig, gen uint64, v any) {
	snap, ok := v.(domain.SystemHealthSnapshot)
	if !ok {
		p.logger.Error("health loop returned unexpected type", zap.String("loop", lc.Name))
		return
	}

	for _, agent := range snap.Agents {
		p.emitIfChanged(lc.Name, gen, "agent:"+agent.AgentID, domain.EventAgentHealth, agent)
	}

	p.emitIfChanged(lc.Name, gen, "system-health", domain.EventSystemHealth, snap)
}

// handleActivity — сравнение по разности множеств ID: эмитятся только
// впервые появившиеся записи, для high-priority новичков дополнительно
// поднимаются производные алерты.
func (p *Poller) handleActivity(lc LoopConfig, gen uint64, v any) {
	items, ok := v.([]domain.ActivityItem)
	if !ok {
		p.logger.Error("activity loop returned unexpected type", zap.String("loop", lc.Name))
		return
	}

	// Окно ограничено и упорядочено: новые первыми
	window := sortActivity(items)
	if len(window) > p.maxActivity {
		window = window[:p.maxActivity]
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	var fresh []domain.ActivityItem
	for _, it := range window {
		if _, seen := p.seenActivity[it.ID]; !seen {
			fresh = append(fresh, it)
		}
	}
	// Кэш — ID предыдущего списка, а не вся история
	next := make(map[string]struct{}, len(window))
	for _, it := range window {
		next[it.ID] = struct{}{}
	}
	first := p.seenActivity == nil
	p.seenActivity = next
	p.mu.Unlock()

	if len(fresh) == 0 && !first {
		p.metrics.EventsSuppressed.WithLabelValues(lc.Name).Inc()
		return
	}

	p.bus.Emit(domain.Event{
		Type:      domain.EventActivity,
		Payload:   domain.ActivityUpdate{Items: window, New: fresh},
		Timestamp: p.clock.Now(),
	})
	p.metrics.EventsEmitted.WithLabelValues(string(domain.EventActivity)).Inc()

	for _, it := range fresh {
		if it.Priority != domain.PriorityHigh {
			continue
		}
		alert := domain.NewActivityAlert(it, uuid.New().String(), p.clock.Now())
		p.bus.Emit(domain.Event{Type: domain.EventAlert, Payload: alert, Timestamp: p.clock.Now()})
		p.metrics.EventsEmitted.WithLabelValues(string(domain.EventAlert)).Inc()
	}
}

func sortActivity(items []domain.ActivityItem) []domain.ActivityItem {
	out := make([]domain.ActivityItem, len(items))
	copy(out, items)
	// Простая вставка: окна маленькие (<=10), сортировка по убыванию времени
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Timestamp.After(out[j-1].Timestamp); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
