package cachedriver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deckyfx/dnsgate/internal/driver"
)

// SimpleFile is the plain file cache driver: one JSON document holding the
// whole store, rewritten on every mutation. Slower than the WAL variant but
// trivially inspectable; meant for small caches.
type SimpleFile struct {
	mu      sync.Mutex
	path    string
	entries map[string]driver.CachedResponse
	maxSize int

	hits      int64
	misses    int64
	evictions int64

	logger *slog.Logger
}

// NewSimpleFile opens (or creates) a single-document cache at path.
func NewSimpleFile(path string, maxSize int, logger *slog.Logger) (*SimpleFile, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &SimpleFile{
		path:    path,
		entries: map[string]driver.CachedResponse{},
		maxSize: maxSize,
		logger:  logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SimpleFile) load() error {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var raw map[string]persistedEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		s.logger.Warn("cache file unreadable, starting empty", "err", err)
		return nil
	}
	now := time.Now()
	for k, pe := range raw {
		e := driver.CachedResponse{StoredAt: pe.StoredAt, TTLSeconds: pe.TTL, ExpiresAt: pe.ExpiresAt}
		if !e.Valid(now) {
			continue
		}
		if revived, ok := revive(pe); ok {
			s.entries[k] = revived
		}
	}
	return nil
}

// saveLocked rewrites the whole document. Caller holds s.mu.
func (s *SimpleFile) saveLocked() {
	raw := make(map[string]persistedEntry, len(s.entries))
	for k, e := range s.entries {
		wire, err := e.Packet.Marshal()
		if err != nil {
			continue
		}
		raw[k] = persistedEntry{Wire: wire, StoredAt: e.StoredAt, TTL: e.TTLSeconds, ExpiresAt: e.ExpiresAt}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		s.logger.Error("cache file marshal failed", "err", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		s.logger.Error("cache file write failed", "err", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("cache file rename failed", "err", err)
	}
}

func (s *SimpleFile) Name() string { return "file" }

func (s *SimpleFile) Get(key string) (driver.CachedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return driver.CachedResponse{}, false
	}
	if !e.Valid(time.Now()) {
		delete(s.entries, key)
		s.saveLocked()
		s.misses++
		return driver.CachedResponse{}, false
	}
	s.hits++
	return e, true
}

func (s *SimpleFile) Set(key string, value driver.CachedResponse, ttlOverride time.Duration) {
	if ttlOverride > 0 {
		value = applyOverride(value, ttlOverride.Milliseconds())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value
	if over := len(s.entries) - s.maxSize; over > 0 {
		for _, k := range oldestKeys(s.entries, over) {
			delete(s.entries, k)
			s.evictions++
		}
	}
	s.saveLocked()
}

func (s *SimpleFile) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
		s.saveLocked()
	}
	return ok
}

func (s *SimpleFile) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && e.Valid(time.Now())
}

func (s *SimpleFile) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

func (s *SimpleFile) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *SimpleFile) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]driver.CachedResponse{}
	s.saveLocked()
}

func (s *SimpleFile) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, e := range s.entries {
		if !e.Valid(now) {
			delete(s.entries, k)
			s.evictions++
		}
	}
	s.saveLocked()
}

func (s *SimpleFile) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for k, e := range s.entries {
		if !e.Valid(now) {
			delete(s.entries, k)
			n++
		}
	}
	if n > 0 {
		s.evictions += int64(n)
		s.saveLocked()
	}
	return n
}

func (s *SimpleFile) EvictLRU(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := oldestKeys(s.entries, n)
	for _, k := range keys {
		delete(s.entries, k)
	}
	if len(keys) > 0 {
		s.evictions += int64(len(keys))
		s.saveLocked()
	}
	return len(keys)
}

func (s *SimpleFile) Stats() driver.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return driver.CacheStats{
		Size:      len(s.entries),
		Hits:      s.hits,
		Misses:    s.misses,
		HitRate:   hitRate(s.hits, s.misses),
		Evictions: s.evictions,
	}
}

func (s *SimpleFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked()
	return nil
}
