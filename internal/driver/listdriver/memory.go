package listdriver

import (
	"sync"
	"time"

	"github.com/deckyfx/dnsgate/internal/driver"
)

// Memory is the in-memory list driver: a guarded map keyed by normalized
// domain.
type Memory struct {
	mu        sync.RWMutex
	entries   map[string]driver.ListEntry
	wildcards bool
}

// NewMemory creates an in-memory domain list. Wildcard matching is applied
// when enabled; exact matches always work.
func NewMemory(wildcards bool) *Memory {
	return &Memory{
		entries:   map[string]driver.ListEntry{},
		wildcards: wildcards,
	}
}

func (m *Memory) Name() string { return "inmemory" }

func (m *Memory) Add(domain, reason, category string) error {
	d := normalize(domain)
	if d == "" {
		return ErrEmptyDomain
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[d] = driver.ListEntry{
		Domain:   d,
		Reason:   reason,
		Category: category,
		Source:   driver.SourceManual,
		AddedAt:  time.Now(),
	}
	return nil
}

func (m *Memory) Remove(domain string) bool {
	d := normalize(domain)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[d]
	delete(m.entries, d)
	return ok
}

func (m *Memory) Contains(domain string) bool {
	_, ok := m.Match(domain)
	return ok
}

func (m *Memory) Match(domain string) (driver.ListEntry, bool) {
	d := normalize(domain)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return matchEntries(m.entries, d, m.wildcards)
}

func (m *Memory) List(category string) []driver.ListEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return listByCategory(m.entries, category)
}

func (m *Memory) Import(entries []driver.ListEntry) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, e := range entries {
		d := normalize(e.Domain)
		if d == "" {
			continue
		}
		if _, exists := m.entries[d]; exists {
			continue
		}
		e.Domain = d
		if e.Source == "" {
			e.Source = driver.SourceImport
		}
		if e.AddedAt.IsZero() {
			e.AddedAt = time.Now()
		}
		m.entries[d] = e
		inserted++
	}
	return inserted
}

func (m *Memory) Export() []driver.ListEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return listByCategory(m.entries, "")
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]driver.ListEntry{}
}

func (m *Memory) Cleanup() {}

func (m *Memory) Stats() driver.ListStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return statsFrom(m.entries)
}

func (m *Memory) Close() error { return nil }
