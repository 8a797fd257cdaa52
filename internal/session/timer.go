package session

import (
	"log/slog"
	"sync"
	"time"
)

// Timer runs deferred callbacks identified by a key. Scheduling an existing key
// replaces the pending callback.
type Timer interface {
	ScheduleAfter(key string, delay time.Duration, fn func())
	Cancel(key string)
	Stop()
}

// timerEntry tracks information about a scheduled timer
type timerEntry struct {
	timer     *time.Timer
	expiresAt time.Time
	seq       uint64
}

// SimpleTimer implements Timer with time.AfterFunc.
type SimpleTimer struct {
	mu      sync.Mutex
	timers  map[string]*timerEntry
	nextSeq uint64
	stopped bool
}

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{timers: make(map[string]*timerEntry)}
}

// ScheduleAfter runs fn after delay unless the key is cancelled or rescheduled first.
func (t *SimpleTimer) ScheduleAfter(key string, delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		slog.Debug("SimpleTimer.ScheduleAfter: timer stopped, ignoring", "key", key)
		return
	}
	if prev, ok := t.timers[key]; ok {
		prev.timer.Stop()
	}
	t.nextSeq++
	seq := t.nextSeq
	entry := &timerEntry{expiresAt: time.Now().Add(delay), seq: seq}
	entry.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		current, ok := t.timers[key]
		if !ok || current.seq != seq {
			// Replaced or cancelled after firing started.
			t.mu.Unlock()
			return
		}
		delete(t.timers, key)
		t.mu.Unlock()
		slog.Debug("SimpleTimer executing scheduled function", "key", key)
		fn()
	})
	t.timers[key] = entry
}

// Cancel drops the pending callback for key, if any.
func (t *SimpleTimer) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.timers[key]; ok {
		entry.timer.Stop()
		delete(t.timers, key)
		slog.Debug("SimpleTimer.Cancel: cancelled", "key", key)
	}
}

// Stop cancels all scheduled timers. Later schedules are ignored.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	slog.Debug("SimpleTimer stopping all timers", "count", len(t.timers))
	t.timers = make(map[string]*timerEntry)
	t.stopped = true
}

// Pending returns the number of scheduled callbacks.
func (t *SimpleTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Remaining returns the time left before key fires.
func (t *SimpleTimer) Remaining(key string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.timers[key]
	if !ok {
		return 0, false
	}
	remaining := time.Until(entry.expiresAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
