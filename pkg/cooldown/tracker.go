// Package cooldown tracks the last reaction time per scope key.
package cooldown

import (
	"sync"
	"time"
)

// Tracker is safe for concurrent use. Entries are never evicted; the whole
// map is dropped on Reset.
type Tracker struct {
	mu    sync.Mutex
	last  map[string]time.Time
	epoch uint64
}

func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]time.Time)}
}

// Reset clears every record.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.last = make(map[string]time.Time)
	t.epoch++
	t.mu.Unlock()
}

// LastReactionTime returns the last recorded time for key.
func (t *Tracker) LastReactionTime(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.last[key]
	return ts, ok
}

// Record stores at as the last reaction time for key.
func (t *Tracker) Record(key string, at time.Time) {
	t.mu.Lock()
	t.last[key] = at
	t.mu.Unlock()
}

// Reserve records at for key before the reaction is confirmed, so that
// messages arriving while it is in flight are already gated. The returned
// undo restores the previous record unless Reset ran or a newer record
// replaced this one in the meantime.
func (t *Tracker) Reserve(key string, at time.Time) (undo func()) {
	t.mu.Lock()
	prev, hadPrev := t.last[key]
	t.last[key] = at
	epoch := t.epoch
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.epoch != epoch {
			return
		}
		if cur, ok := t.last[key]; !ok || !cur.Equal(at) {
			return
		}
		if hadPrev {
			t.last[key] = prev
		} else {
			delete(t.last, key)
		}
	}
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
