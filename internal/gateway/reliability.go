package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Reliability — обертка надежности вокруг сырых HTTP-вызовов агентов:
// Rate Limiter -> Circuit Breaker -> Retry.
// Шлюз выше по стеку конвертирует любую ошибку отсюда в typed failure result,
// поэтому за эту границу ошибки "наружу" не улетают.
type Reliability struct {
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts int
}

func NewReliability(rateLimit float64, burst int, attempts int) *Reliability {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "agent-gateway",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	if attempts < 1 {
		attempts = 1
	}

	return &Reliability{
		cb:       cb,
		limiter:  rate.NewLimiter(rate.Limit(rateLimit), burst),
		attempts: attempts,
	}
}

// Execute прогоняет op через лимитер, предохранитель и ретраи.
func (w *Reliability) Execute(ctx context.Context, op func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData []byte

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(uint(w.attempts)),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если агент вернул ThrottleError (считали Retry-After заголовок)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			var callErr error
			finalData, callErr = op(ctx)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.([]byte), nil
}
