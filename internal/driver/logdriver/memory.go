package logdriver

import (
	"sync"

	"github.com/deckyfx/dnsgate/internal/driver"
)

// DefaultMaxEntries bounds the in-memory ring buffer.
const DefaultMaxEntries = 10000

// Memory keeps log entries in a bounded ring buffer. Oldest entries fall
// off when the buffer is full.
type Memory struct {
	mu         sync.RWMutex
	entries    []driver.LogEntry // oldest first
	maxEntries int
}

// NewMemory creates an in-memory log store holding up to maxEntries.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		entries:    make([]driver.LogEntry, 0, min(maxEntries, 1024)),
		maxEntries: maxEntries,
	}
}

func (m *Memory) Name() string { return "inmemory" }

func (m *Memory) Log(e driver.LogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if len(m.entries) > m.maxEntries {
		// Drop the oldest; copy down so the backing array doesn't grow
		// without bound.
		overflow := len(m.entries) - m.maxEntries
		m.entries = append(m.entries[:0], m.entries[overflow:]...)
	}
}

func (m *Memory) Logs(f driver.LogFilter) []driver.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterNewestFirst(m.entries, f)
}

func (m *Memory) Pair(requestID string) (*driver.LogEntry, *driver.LogEntry) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, resp := pairFrom(m.entries, requestID)
	return cloneEntry(req), cloneEntry(resp)
}

func (m *Memory) Orphans() []driver.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return orphansFrom(m.entries)
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = m.entries[:0]
}

// Cleanup is a no-op: the ring buffer bounds itself.
func (m *Memory) Cleanup() {}

func (m *Memory) Stats() driver.LogStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return statsFrom(m.entries)
}

func (m *Memory) Close() error { return nil }

// cloneEntry detaches a returned entry from the guarded slice.
func cloneEntry(e *driver.LogEntry) *driver.LogEntry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
