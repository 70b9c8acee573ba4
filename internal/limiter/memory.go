package limiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is an in-process limiter used with the memory token store.
type Memory struct {
	mu        sync.Mutex
	policy    Policy
	now       func() time.Time
	entries   map[string]*entry
	lastSweep time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory constructs an in-process limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{policy: p, now: time.Now, entries: make(map[string]*entry)}
}

func key(scope string, ipHash []byte) string { return scope + "\x00" + string(ipHash) }

// Allow reports whether an attempt is currently allowed and a retry-after duration.
func (m *Memory) Allow(_ context.Context, scope string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	k := key(scope, ipHash)
	e, ok := m.entries[k]
	switch {
	case !ok:
	case e.blockedUntil.After(now):
		return false, e.blockedUntil.Sub(now), nil
	case m.stale(e, now):
		delete(m.entries, k)
	}
	return true, 0, nil
}

// Success forgets the address.
func (m *Memory) Success(_ context.Context, scope string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key(scope, ipHash))
	return nil
}

// Failure records a failed attempt; may place a block.
func (m *Memory) Failure(_ context.Context, scope string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	k := key(scope, ipHash)
	e, ok := m.entries[k]
	switch {
	case !ok:
		e = &entry{}
		m.entries[k] = e
	case now.Sub(e.updatedAt) > m.policy.Window:
		e.fails = 0
	}
	e.fails++
	e.updatedAt = now
	if e.fails < m.policy.MaxFails {
		return false, 0, nil
	}
	e.blockedUntil = now.Add(m.policy.BlockFor)
	return true, m.policy.BlockFor, nil
}

// stale reports whether e no longer counts failures nor blocks.
func (m *Memory) stale(e *entry, now time.Time) bool {
	return now.Sub(e.updatedAt) > m.policy.Window && !e.blockedUntil.After(now)
}

// sweep drops stale entries at most once per Window. Callers hold mu.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.policy.Window {
		return
	}
	m.lastSweep = now
	for k, e := range m.entries {
		if m.stale(e, now) {
			delete(m.entries, k)
		}
	}
}
