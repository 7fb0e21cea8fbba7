package coalescer

import (
	"context"
	"sync"
	"time"
)

type memoryEntry[V any] struct {
	value   V
	expires time.Time
}

// MemoryCache is an in-process TTL cache. Expired entries are removed on read.
type MemoryCache[V any] struct {
	mu      sync.Mutex
	entries map[string]memoryEntry[V]
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache[V any]() *MemoryCache[V] {
	return &MemoryCache[V]{entries: make(map[string]memoryEntry[V]), now: time.Now}
}

// Get implements Cache.
func (m *MemoryCache[V]) Get(_ context.Context, key string) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	e, ok := m.entries[key]
	if !ok {
		return zero, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return zero, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache. A non-positive ttl stores nothing.
func (m *MemoryCache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry[V]{value: value, expires: m.now().Add(ttl)}
	return nil
}

// Delete implements Cache.
func (m *MemoryCache[V]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
