package core

import (
	"sync"
	"time"
)

type cooldownKey struct {
	command string
	actor   string
}

type cooldownEntry struct {
	expires time.Time
	timer   Timer
}

// CooldownTracker maps (command, actor) to an expiry instant. Entries are
// forgotten by a detached timer at expiry; an entry whose expiry has passed is
// treated as absent even if its timer has not fired yet.
type CooldownTracker struct {
	mu      sync.Mutex
	clock   Clock
	entries map[cooldownKey]*cooldownEntry
}

// NewCooldownTracker returns a tracker driven by clock (SystemClock when nil).
func NewCooldownTracker(clock Clock) *CooldownTracker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CooldownTracker{
		clock:   clock,
		entries: make(map[cooldownKey]*cooldownEntry),
	}
}

// Check returns the time left on the cooldown and whether it is active.
func (t *CooldownTracker) Check(command, actor string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining(cooldownKey{command, actor})
}

func (t *CooldownTracker) remaining(k cooldownKey) (time.Duration, bool) {
	e, ok := t.entries[k]
	if !ok {
		return 0, false
	}
	left := e.expires.Sub(t.clock.Now())
	if left <= 0 {
		return 0, false
	}
	return left, true
}

// Apply starts a cooldown of d for the key. Non-positive durations are ignored.
func (t *CooldownTracker) Apply(command, actor string, d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apply(cooldownKey{command, actor}, d)
}

func (t *CooldownTracker) apply(k cooldownKey, d time.Duration) {
	if old, ok := t.entries[k]; ok && old.timer != nil {
		old.timer.Stop()
	}
	e := &cooldownEntry{expires: t.clock.Now().Add(d)}
	e.timer = t.clock.AfterFunc(d, func() { t.expire(k, e) })
	t.entries[k] = e
}

// Acquire is the atomic check-then-apply used by the dispatcher: if no
// cooldown is active it starts one of d and returns ok; otherwise it returns
// the time left. No other Acquire for the same key can interleave.
func (t *CooldownTracker) Acquire(command, actor string, d time.Duration) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := cooldownKey{command, actor}
	if left, active := t.remaining(k); active {
		return left, false
	}
	if d > 0 {
		t.apply(k, d)
	} else {
		delete(t.entries, k)
	}
	return 0, true
}

// Reset forgets the cooldown for the key.
func (t *CooldownTracker) Reset(command, actor string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := cooldownKey{command, actor}
	if e, ok := t.entries[k]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(t.entries, k)
	}
}

// Len returns the number of stored entries, expired ones included until their
// timer fires.
func (t *CooldownTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *CooldownTracker) expire(k cooldownKey, e *cooldownEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.entries[k]; ok && cur == e {
		delete(t.entries, k)
	}
}
