// Package power keeps the process marked busy while a call is being set up.
package power

import (
	"log/slog"
	"sync"
	"time"
)

// WakeLock is a timed, non-reference-counted busy marker. Acquire while held
// restarts the timeout; Release is idempotent. The lock releases itself when
// the timeout expires.
type WakeLock struct {
	name string

	mu     sync.Mutex
	held   bool
	timer  *time.Timer
	expiry time.Time

	acquired int
	released int
}

// NewWakeLock creates a lock tagged with name for logging.
func NewWakeLock(name string) *WakeLock {
	return &WakeLock{name: name}
}

// Acquire marks the lock held for at most timeout.
func (w *WakeLock) Acquire(timeout time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	if !w.held {
		w.acquired++
	}
	w.held = true
	w.expiry = time.Now().Add(timeout)
	w.timer = time.AfterFunc(timeout, w.expire)

	slog.Debug("[Power] Wake lock acquired", "name", w.name, "timeout", timeout)
}

// Release drops the lock if held.
func (w *WakeLock) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseLocked("released")
}

func (w *WakeLock) expire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held && !time.Now().Before(w.expiry) {
		w.releaseLocked("expired")
	}
}

func (w *WakeLock) releaseLocked(how string) {
	if !w.held {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.held = false
	w.released++
	slog.Debug("[Power] Wake lock "+how, "name", w.name)
}

// Held reports whether the lock is currently held.
func (w *WakeLock) Held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}

// Counts returns how many times the lock was taken and dropped.
func (w *WakeLock) Counts() (acquired, released int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acquired, w.released
}
