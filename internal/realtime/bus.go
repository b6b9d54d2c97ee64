package realtime

import (
	"sync"

	"github.com/xela07ax/agentpulse/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler — подписчик одного типа событий.
type Handler func(domain.Event)

// Bus — типизированный publish/subscribe реестр между поллером
// и потребителями (в первую очередь реактивным стором).
// Гарантий порядка между типами нет; внутри одного Emit доставка
// идет по снапшоту текущего набора подписчиков.
type Bus struct {
	mu     sync.RWMutex
	subs   map[domain.EventType]map[string]Handler
	logger *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[domain.EventType]map[string]Handler),
		logger: logger.Named("bus"),
	}
}

// On регистрирует подписчика и возвращает disposer.
// Подписчиков на один тип может быть сколько угодно (fan-out).
func (b *Bus) On(t domain.EventType, h Handler) func() {
	id := uuid.New().String()

	b.mu.Lock()
	if b.subs[t] == nil {
		b.subs[t] = make(map[string]Handler)
	}
	b.subs[t][id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs[t], id)
		b.mu.Unlock()
	}
}

// Emit доставляет событие каждому подписчику его типа.
// Паника одного подписчика гасится и логируется — остальные получают
// событие в любом случае (осознанное решение, не оплошность:
// один сломанный потребитель не должен ронять fan-out).
func (b *Bus) Emit(e domain.Event) {
	// Снапшот подписчиков: add/remove во время доставки
	// не влияют на уже начавшийся Emit
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.Type]))
	for _, h := range b.subs[e.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(e, h)
	}
}

func (b *Bus) dispatch(e domain.Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_type", string(e.Type)),
				zap.Any("panic", r))
		}
	}()
	h(e)
}
