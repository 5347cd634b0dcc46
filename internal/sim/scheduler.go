package sim

import (
	"sync"
	"time"
)

// TickScheduler starts a repeating callback and returns a cancel handle that
// deterministically stops future invocations. The abstraction exists so the
// controller can be driven tick-by-tick in tests without real timers.
type TickScheduler interface {
	Schedule(interval time.Duration, fn func()) (cancel func())
}

// TickerScheduler runs the callback on a dedicated goroutine off a
// time.Ticker. Invocations never overlap because a single goroutine owns the
// loop.
type TickerScheduler struct{}

// Schedule starts the ticker loop. The returned cancel function is safe to
// call multiple times and from the callback itself.
func (TickerScheduler) Schedule(interval time.Duration, fn func()) func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return func() {
		once.Do(func() { close(done) })
	}
}
