// Package session binds durable player identities to their live connection
// and room, and owns the grace-period timers that run while a player is
// disconnected.
package session

import (
	"sync"
	"time"
)

type Binding struct {
	ConnID string
	Code   string
}

type graceKey struct {
	code     string
	playerID string
}

type Tracker struct {
	mu       sync.Mutex
	bindings map[string]Binding
	timers   map[graceKey]*time.Timer
}

func NewTracker() *Tracker {
	return &Tracker{
		bindings: make(map[string]Binding),
		timers:   make(map[graceKey]*time.Timer),
	}
}

// Bind points playerID at connID in room code and cancels a pending removal
// for that room. prev is the binding it replaced; moved reports that prev
// belonged to a different room.
func (t *Tracker) Bind(playerID, connID, code string) (prev Binding, moved bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, had := t.bindings[playerID]
	t.bindings[playerID] = Binding{ConnID: connID, Code: code}
	t.stopLocked(graceKey{code: code, playerID: playerID})
	return prev, had && prev.Code != code
}

func (t *Tracker) Lookup(playerID string) (Binding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[playerID]
	return b, ok
}

// StartGrace arms fire to run once after d unless cancelled first. An
// existing timer for the same player and room is replaced.
func (t *Tracker) StartGrace(code, playerID string, d time.Duration, fire func()) {
	key := graceKey{code: code, playerID: playerID}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked(key)
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		current := t.timers[key] == timer
		if current {
			delete(t.timers, key)
		}
		t.mu.Unlock()
		if current {
			fire()
		}
	})
	t.timers[key] = timer
}

// CancelGrace reports whether a pending timer was stopped.
func (t *Tracker) CancelGrace(code, playerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked(graceKey{code: code, playerID: playerID})
}

// Forget drops playerID's binding if it still points at code, and any
// timer for that pair.
func (t *Tracker) Forget(playerID, code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.bindings[playerID]; ok && b.Code == code {
		delete(t.bindings, playerID)
	}
	t.stopLocked(graceKey{code: code, playerID: playerID})
}

// ForgetRoom clears everything tied to code. Called when the room is
// destroyed, so a reused code starts clean.
func (t *Tracker) ForgetRoom(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, b := range t.bindings {
		if b.Code == code {
			delete(t.bindings, id)
		}
	}
	for key, timer := range t.timers {
		if key.code == code {
			timer.Stop()
			delete(t.timers, key)
		}
	}
}

func (t *Tracker) Pending(code string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for key := range t.timers {
		if key.code == code {
			n++
		}
	}
	return n
}

func (t *Tracker) stopLocked(key graceKey) bool {
	timer, ok := t.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, key)
	return true
}
