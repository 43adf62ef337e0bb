package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLMap stores values that expire a fixed duration after their last Put.
//
// An entry is visible while now < expiresAt. Capacity, when positive, bounds
// the number of stored entries (expired ones included until swept); Put
// evicts expired entries before refusing a new key.
//
// All methods are thread-safe.
type TTLMap[K comparable, V any] struct {
	ttl      time.Duration
	capacity int
	now      Clock

	mu      sync.RWMutex
	entries map[K]entry[V]
}

// NewTTLMap creates a map with the given entry lifetime.
// A capacity of zero or less means unbounded.
func NewTTLMap[K comparable, V any](ttl time.Duration, capacity int) *TTLMap[K, V] {
	return &TTLMap[K, V]{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		entries:  make(map[K]entry[V]),
	}
}

// SetClock replaces the time source. Intended for tests.
func (m *TTLMap[K, V]) SetClock(now Clock) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// TTL returns the entry lifetime.
func (m *TTLMap[K, V]) TTL() time.Duration {
	return m.ttl
}

// Put stores value under key, replacing any previous value and restarting
// its lifetime.
func (m *TTLMap[K, V]) Put(key K, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[key]; !exists && m.capacity > 0 && len(m.entries) >= m.capacity {
		m.sweepLocked(now)
		if len(m.entries) >= m.capacity {
			return ErrCacheFull
		}
	}
	m.entries[key] = entry[V]{value: value, expiresAt: now.Add(m.ttl)}
	return nil
}

// Get returns the value for key if it has not expired.
func (m *TTLMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes key.
func (m *TTLMap[K, V]) Delete(key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// List returns every unexpired entry. Order is unspecified.
func (m *TTLMap[K, V]) List() map[K]V {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make(map[K]V, len(m.entries))
	for k, e := range m.entries {
		if now.Before(e.expiresAt) {
			out[k] = e.value
		}
	}
	return out
}

// Len returns the number of stored entries, expired ones included.
func (m *TTLMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes expired entries and returns how many were removed.
func (m *TTLMap[K, V]) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now())
}

func (m *TTLMap[K, V]) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (m *TTLMap[K, V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
