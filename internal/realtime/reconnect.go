package realtime

import (
	"sync"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/infra"

	"go.uber.org/zap"
)

// Controller владеет общим состоянием "connected" и управляет рестартом
// опроса после повторных сбоев. Один экземпляр на процесс: запускается
// явным Connect() на старте приложения, гасится на teardown.
type Controller struct {
	poller  *Poller
	bus     *Bus
	clock   Clock
	logger  *zap.Logger
	metrics *Metrics

	baseDelay   time.Duration
	maxAttempts int

	mu        sync.Mutex
	connected bool
	attempts  int
	pending   Timer
	terminal  bool // попытки исчерпаны: лежим до ручного Connect()
}

func NewController(poller *Poller, bus *Bus, clock Clock, metrics *Metrics, logger *zap.Logger, cfg infra.RealtimeConfig) *Controller {
	baseDelay := cfg.ReconnectBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	c := &Controller{
		poller:      poller,
		bus:         bus,
		clock:       clock,
		logger:      logger.Named("reconnect"),
		metrics:     metrics,
		baseDelay:   baseDelay,
		maxAttempts: maxAttempts,
	}
	poller.SetHooks(c.IsConnected, c.onPollFailure, c.onPollSuccess)
	return c
}

// Connect — явное включение realtime: сбрасывает счетчики попыток
// и запускает все лупы опроса.
func (c *Controller) Connect() {
	c.connect(true)
}

// Disconnect — явное выключение: таймеры лупов гасятся, кэш сравнения
// чистится (будущий reconnect начинает с чистого листа), in-flight фетчи
// не прерываются — их результаты просто не будут сравниваться.
func (c *Controller) Disconnect() {
	c.disconnect("manual disconnect", false)
}

// IsConnected сообщает текущее состояние соединения.
func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Controller) connect(explicit bool) {
	c.mu.Lock()
	if explicit {
		c.terminal = false
		c.attempts = 0
	}
	if c.connected || c.terminal {
		c.mu.Unlock()
		return
	}
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.connected = true
	c.mu.Unlock()

	c.metrics.Connected.Set(1)
	c.logger.Info("realtime connected", zap.Bool("explicit", explicit))

	c.poller.Start()
	c.bus.Emit(domain.Event{
		Type:      domain.EventConnectionStatus,
		Payload:   domain.ConnectionStatus{Connected: true},
		Timestamp: c.clock.Now(),
	})
}

func (c *Controller) disconnect(reason string, terminal bool) {
	c.mu.Lock()
	if terminal {
		c.terminal = true
	}
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.mu.Unlock()

	c.poller.Stop()
	c.poller.ResetCache()
	c.metrics.Connected.Set(0)
	c.logger.Info("realtime disconnected", zap.String("reason", reason), zap.Bool("terminal", terminal))

	c.bus.Emit(domain.Event{
		Type:      domain.EventConnectionStatus,
		Payload:   domain.ConnectionStatus{Connected: false, Reason: reason},
		Timestamp: c.clock.Now(),
	})
}

// onPollSuccess сбрасывает счетчик последовательных сбоев.
func (c *Controller) onPollSuccess(string) {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
}

// onPollFailure — сигнал сбоя цикла опроса.
// Каждый сбой: останавливаем опрос и планируем переподключение через
// baseDelay * 2^(attempt-1). После maxAttempts последовательных сбоев —
// терминальный disconnect без дальнейших авто-ретраев.
func (c *Controller) onPollFailure(loop string, err error) {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	c.metrics.ReconnectAttempts.Inc()

	if attempt > c.maxAttempts {
		c.logger.Error("reconnect attempts exhausted: realtime is down until manual connect",
			zap.String("loop", loop),
			zap.Int("attempts", attempt-1),
			zap.Error(err))
		c.disconnect("real-time connection lost", true)
		return
	}

	delay := c.backoffDelay(attempt)
	c.logger.Warn("poll failure, scheduling reconnect",
		zap.String("loop", loop),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(err))

	c.disconnect("polling failure", false)

	c.mu.Lock()
	if c.pending != nil {
		c.pending.Stop()
	}
	c.pending = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
		c.connect(false)
	})
	c.mu.Unlock()
}

// backoffDelay: попытка n ждет baseDelay * 2^(n-1).
func (c *Controller) backoffDelay(attempt int) time.Duration {
	return c.baseDelay << uint(attempt-1)
}
