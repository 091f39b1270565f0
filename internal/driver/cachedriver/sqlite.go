package cachedriver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/deckyfx/dnsgate/internal/dnswire"
	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/driver/sqlitestore"
)

// SQLite persists cached responses through the shared SQLite store. Store
// failures degrade to cache misses; they never reach the response path.
type SQLite struct {
	db      *sqlitestore.DB
	logger  *slog.Logger
	maxSize int

	mu        sync.Mutex
	hits      int64
	misses    int64
	evictions int64
}

// NewSQLite opens a SQLite-backed cache at the given path.
func NewSQLite(path string, maxSize int, logger *slog.Logger) (*SQLite, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sqlitestore.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: db, logger: logger, maxSize: maxSize}, nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) recordHit()  { s.mu.Lock(); s.hits++; s.mu.Unlock() }
func (s *SQLite) recordMiss() { s.mu.Lock(); s.misses++; s.mu.Unlock() }

func (s *SQLite) Get(key string) (driver.CachedResponse, bool) {
	row, ok, err := s.db.GetCacheEntry(key)
	if err != nil {
		s.logger.Error("cache get failed", "key", key, "err", err)
		s.recordMiss()
		return driver.CachedResponse{}, false
	}
	if !ok {
		s.recordMiss()
		return driver.CachedResponse{}, false
	}

	e := driver.CachedResponse{
		StoredAt:   row.StoredAt,
		TTLSeconds: row.TTL,
		ExpiresAt:  row.ExpiresAt,
	}
	if !e.Valid(time.Now()) {
		_, _ = s.db.DeleteCacheEntry(key)
		s.recordMiss()
		return driver.CachedResponse{}, false
	}

	p, err := dnswire.Decode(row.Wire)
	if err != nil {
		_, _ = s.db.DeleteCacheEntry(key)
		s.recordMiss()
		return driver.CachedResponse{}, false
	}
	e.Packet = p
	s.recordHit()
	return e, true
}

func (s *SQLite) Set(key string, value driver.CachedResponse, ttlOverride time.Duration) {
	if ttlOverride > 0 {
		value = applyOverride(value, ttlOverride.Milliseconds())
	}
	wire, err := value.Packet.Marshal()
	if err != nil {
		s.logger.Error("cache set marshal failed", "key", key, "err", err)
		return
	}
	err = s.db.UpsertCacheEntry(sqlitestore.CacheRow{
		Key:       key,
		Wire:      wire,
		StoredAt:  value.StoredAt,
		TTL:       value.TTLSeconds,
		ExpiresAt: value.ExpiresAt,
	})
	if err != nil {
		s.logger.Error("cache set failed", "key", key, "err", err)
		return
	}

	size, err := s.db.CacheSize()
	if err == nil && size > s.maxSize {
		if n, err := s.db.DeleteOldestCacheEntries(size - s.maxSize); err == nil {
			s.mu.Lock()
			s.evictions += n
			s.mu.Unlock()
		}
	}
}

func (s *SQLite) Delete(key string) bool {
	ok, err := s.db.DeleteCacheEntry(key)
	if err != nil {
		s.logger.Error("cache delete failed", "key", key, "err", err)
		return false
	}
	return ok
}

func (s *SQLite) Has(key string) bool {
	row, ok, err := s.db.GetCacheEntry(key)
	if err != nil || !ok {
		return false
	}
	return time.Now().UnixMilli() < row.ExpiresAt
}

func (s *SQLite) Keys() []string {
	keys, err := s.db.CacheKeys()
	if err != nil {
		s.logger.Error("cache keys failed", "err", err)
		return nil
	}
	return keys
}

func (s *SQLite) Size() int {
	n, err := s.db.CacheSize()
	if err != nil {
		s.logger.Error("cache size failed", "err", err)
		return 0
	}
	return n
}

func (s *SQLite) Clear() {
	if err := s.db.ClearCache(); err != nil {
		s.logger.Error("cache clear failed", "err", err)
	}
}

func (s *SQLite) Cleanup() {
	s.EvictExpired()
}

func (s *SQLite) EvictExpired() int {
	n, err := s.db.DeleteExpiredCacheEntries(time.Now())
	if err != nil {
		s.logger.Error("cache expiry eviction failed", "err", err)
		return 0
	}
	s.mu.Lock()
	s.evictions += n
	s.mu.Unlock()
	return int(n)
}

func (s *SQLite) EvictLRU(n int) int {
	removed, err := s.db.DeleteOldestCacheEntries(n)
	if err != nil {
		s.logger.Error("cache LRU eviction failed", "err", err)
		return 0
	}
	s.mu.Lock()
	s.evictions += removed
	s.mu.Unlock()
	return int(removed)
}

func (s *SQLite) Stats() driver.CacheStats {
	size, _ := s.db.CacheSize()
	s.mu.Lock()
	defer s.mu.Unlock()
	return driver.CacheStats{
		Size:      size,
		Hits:      s.hits,
		Misses:    s.misses,
		HitRate:   hitRate(s.hits, s.misses),
		Evictions: s.evictions,
	}
}

func (s *SQLite) Close() error { return s.db.Close() }
