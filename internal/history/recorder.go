package history

/*
Файл recorder.go реализует асинхронную запись истории алертов и активности.

Ключевые особенности архитектуры:
- Non-blocking Logging: события с шины уходят в буферный канал и не
  задерживают доставку остальным подписчикам. Задержки БД не влияют
  на realtime-контур.
- Batching & Efficiency: накопление записей в памяти и пакетная вставка
  (Bulk Insert) в PostgreSQL по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  полностью, финальный flush гарантирует отсутствие потерь при рестарте.
- Load Shedding: при переполнении буфера запись сбрасывается в логгер,
  а не блокирует отправителя.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/infra"
	"github.com/xela07ax/agentpulse/internal/realtime"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняется история
type StorageInterface interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, records []Record) error
}

type Recorder struct {
	ch     chan Record
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	batchSize  int
	flushEvery time.Duration

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Write после Stop
	isClosed int32

	disposers []func()
}

func NewRecorder(repo StorageInterface, logger *zap.Logger, cfg infra.HistoryConfig) *Recorder {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushEvery := cfg.FlushInterval
	if flushEvery <= 0 {
		flushEvery = 500 * time.Millisecond
	}

	return &Recorder{
		ch:         make(chan Record, bufferSize),
		repo:       repo,
		logger:     logger.With(zap.String("mod", "history")),
		batchSize:  batchSize,
		flushEvery: flushEvery,
	}
}

// Attach подписывает рекордер на события шины: каждое изменение алерта
// и каждая новая запись активности уходят в историю.
func (r *Recorder) Attach(bus *realtime.Bus) {
	r.disposers = append(r.disposers,
		bus.On(domain.EventAlert, r.onAlert),
		bus.On(domain.EventActivity, r.onActivity),
	)
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.worker()
}

// Stop отписывается от шины, «запирает» вход и ждет, пока воркер всё допишет.
func (r *Recorder) Stop() {
	for _, d := range r.disposers {
		d()
	}
	r.disposers = nil

	// 1. Сначала ставим флаг
	atomic.StoreInt32(&r.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Write успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем (Drain Pattern). Завершение горутины происходит исключительно через закрытие входного канала.
	r.logger.Info("stopping history recorder: closing channel and flushing buffer...")
	close(r.ch)
	r.wg.Wait()
	r.logger.Info("history recorder stopped gracefully")
}

// Write ставит запись в очередь на персистенцию.
func (r *Recorder) Write(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&r.isClosed) == 1 {
		r.logger.Warn("history record dropped: recorder is stopping", zap.String("id", rec.ID))
		return
	}

	// Стратегия Load Shedding: переполненный буфер не блокирует отправителя
	select {
	case r.ch <- rec:
	default:
		r.logger.Error("history_buffer_overflow",
			zap.String("id", rec.ID),
			zap.String("kind", string(rec.Kind)),
		)
	}
}

func (r *Recorder) onAlert(e domain.Event) {
	a, ok := e.Payload.(domain.Alert)
	if !ok {
		return
	}
	status := StatusRaised
	switch {
	case a.ResolvedAt != nil:
		status = StatusResolved
	case a.Acknowledged:
		status = StatusAcknowledged
	}
	r.Write(Record{
		ID:        a.ID,
		Kind:      KindAlert,
		Status:    status,
		Title:     a.Title,
		Detail:    a.Message,
		Severity:  string(a.Type),
		Payload:   a,
		Timestamp: e.Timestamp,
	})
}

func (r *Recorder) onActivity(e domain.Event) {
	u, ok := e.Payload.(domain.ActivityUpdate)
	if !ok {
		return
	}
	// В историю идут только впервые появившиеся записи: полное окно
	// повторяется из цикла в цикл и раздуло бы таблицу дублями
	for _, it := range u.New {
		r.Write(Record{
			ID:        it.ID,
			Kind:      KindActivity,
			AgentName: it.AgentName,
			Title:     it.Title,
			Detail:    it.Description,
			Severity:  string(it.Priority),
			Payload:   it,
			Timestamp: it.Timestamp,
		})
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]Record, 0, r.batchSize)
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Используем Background: основной контекст может быть уже закрыт
			if err := r.repo.WriteBatch(context.Background(), batch); err != nil {
				r.logger.Error("history flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case rec, ok := <-r.ch:
			if !ok {
				// Канал закрыт в Stop() — самодостаточный сигнал завершения:
				// воркер сначала вычитает остатки очереди, потом получит
				// ok == false, сделает финальный flush и выйдет.
				flush()
				r.logger.Info("history worker finished")
				return
			}
			batch = append(batch, rec)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
