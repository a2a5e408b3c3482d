package authsync

import (
	"sync"
	"time"
)

// SafetyWatchdog is the last line of defense against an infinite loading
// state: a single bounded timer that forces a terminal outcome if no
// resolution cycle completes in time. It fires at most once and is disarmed
// by the first terminal snapshot or by engine shutdown.
type SafetyWatchdog struct {
	mu      sync.Mutex
	timer   *time.Timer
	fired   bool
	stopped bool
}

func newSafetyWatchdog(bound time.Duration, onTimeout func()) *SafetyWatchdog {
	w := &SafetyWatchdog{}
	w.timer = time.AfterFunc(bound, func() {
		w.mu.Lock()
		if w.stopped || w.fired {
			w.mu.Unlock()
			return
		}
		w.fired = true
		w.mu.Unlock()
		onTimeout()
	})
	return w
}

// Stop disarms the watchdog. Safe to call repeatedly and after firing.
func (w *SafetyWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Fired reports whether the timeout has been delivered.
func (w *SafetyWatchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}
