// Package realtimetest содержит детерминированные реализации абстракций
// времени для тестов: виртуальные часы двигаются вручную через Advance,
// вместо ожидания wall-clock интервалов.
package realtimetest

import (
	"sync"
	"time"

	"github.com/xela07ax/agentpulse/internal/realtime"
)

type FakeClock struct {
	mu          sync.Mutex
	now         time.Time
	timers      []*fakeTimer
	tickers     []*fakeTicker
	afterDelays []time.Duration
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) NewTicker(d time.Duration) realtime.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{
		clock:    c,
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) realtime.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	c.afterDelays = append(c.afterDelays, d)
	return t
}

// AfterDelays возвращает все задержки, запрошенные через AfterFunc,
// в порядке планирования. Тесты бэкоффа сверяют их с ожидаемой кривой.
func (c *FakeClock) AfterDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.afterDelays))
	copy(out, c.afterDelays)
	return out
}

// Advance двигает виртуальное время вперед, по пути срабатывая таймеры
// и тикеры в хронологическом порядке. Колбэки зовутся без удержания
// внутреннего лока: им можно планировать новые таймеры.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		et, ok := c.nextEventLocked(target)
		if !ok {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = et

		var fns []func()
		for _, t := range c.timers {
			if !t.fired && !t.stopped && !t.when.After(et) {
				t.fired = true
				fns = append(fns, t.fn)
			}
		}
		var sends []chan time.Time
		for _, t := range c.tickers {
			if t.stopped {
				continue
			}
			for !t.next.After(et) {
				sends = append(sends, t.ch)
				t.next = t.next.Add(t.interval)
			}
		}
		c.mu.Unlock()

		for _, f := range fns {
			f()
		}
		for _, ch := range sends {
			select {
			case ch <- et:
			default:
				// Получатель не успел вычитать прошлый тик — пропускаем,
				// как это делает и настоящий time.Ticker
			}
		}
	}
}

func (c *FakeClock) nextEventLocked(target time.Time) (time.Time, bool) {
	var et time.Time
	found := false
	consider := func(t time.Time) {
		// События строго в (now, target]
		if !t.After(c.now) || t.After(target) {
			return
		}
		if !found || t.Before(et) {
			et = t
			found = true
		}
	}
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			consider(t.when)
		}
	}
	for _, t := range c.tickers {
		if !t.stopped {
			consider(t.next)
		}
	}
	return et, found
}

// Поля таймеров и тикеров защищены локом часов: Stop может прийти
// из чужой горутины конкурентно с Advance.
type fakeTimer struct {
	clock   *FakeClock
	when    time.Time
	fn      func()
	fired   bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
	return !t.fired
}

type fakeTicker struct {
	clock    *FakeClock
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
