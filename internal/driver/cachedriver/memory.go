package cachedriver

import (
	"sync"
	"time"

	"github.com/deckyfx/dnsgate/internal/driver"
)

// DefaultCleanupInterval is how often the in-memory cache sweeps expired
// entries.
const DefaultCleanupInterval = 60 * time.Second

// Memory is the in-memory cache driver: a guarded map with TTL expiry on
// read, insertion-time LRU eviction and a periodic cleanup timer.
type Memory struct {
	mu      sync.Mutex
	entries map[string]driver.CachedResponse
	maxSize int

	hits      int64
	misses    int64
	evictions int64

	stop chan struct{}
	once sync.Once
}

// NewMemory creates an in-memory cache holding up to maxSize entries and
// starts the cleanup timer.
func NewMemory(maxSize int, cleanupInterval time.Duration) *Memory {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	m := &Memory{
		entries: map[string]driver.CachedResponse{},
		maxSize: maxSize,
		stop:    make(chan struct{}),
	}
	go m.cleanupLoop(cleanupInterval)
	return m
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.EvictExpired()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) Name() string { return "inmemory" }

func (m *Memory) Get(key string) (driver.CachedResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.misses++
		return driver.CachedResponse{}, false
	}
	if !e.Valid(time.Now()) {
		delete(m.entries, key)
		m.misses++
		return driver.CachedResponse{}, false
	}
	m.hits++
	return e, true
}

func (m *Memory) Set(key string, value driver.CachedResponse, ttlOverride time.Duration) {
	if ttlOverride > 0 {
		value = applyOverride(value, ttlOverride.Milliseconds())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = value
	if over := len(m.entries) - m.maxSize; over > 0 {
		for _, k := range oldestKeys(m.entries, over) {
			delete(m.entries, k)
			m.evictions++
		}
	}
}

func (m *Memory) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok
}

func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && e.Valid(time.Now())
}

func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]driver.CachedResponse{}
}

// Cleanup evicts expired entries; there is nothing to persist.
func (m *Memory) Cleanup() {
	m.EvictExpired()
}

func (m *Memory) EvictExpired() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, e := range m.entries {
		if !e.Valid(now) {
			delete(m.entries, k)
			n++
		}
	}
	m.evictions += int64(n)
	return n
}

func (m *Memory) EvictLRU(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := oldestKeys(m.entries, n)
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.evictions += int64(len(keys))
	return len(keys)
}

func (m *Memory) Stats() driver.CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return driver.CacheStats{
		Size:      len(m.entries),
		Hits:      m.hits,
		Misses:    m.misses,
		HitRate:   hitRate(m.hits, m.misses),
		Evictions: m.evictions,
	}
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
