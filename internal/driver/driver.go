// Package driver defines the four pluggable store contracts of the query
// pipeline (logs, cache, blacklist, whitelist) and the string-keyed registry
// that builds them from persisted configuration.
//
// Implementations live in the logdriver, cachedriver and listdriver
// subpackages. All implementations must be safe for concurrent use: the
// resolver calls them from many in-flight queries at once.
package driver

import "time"

// Kind names a driver slot on the resolver.
type Kind string

const (
	KindLogs      Kind = "logs"
	KindCache     Kind = "cache"
	KindBlacklist Kind = "blacklist"
	KindWhitelist Kind = "whitelist"
)

// Kinds lists every driver slot in a stable order.
func Kinds() []Kind {
	return []Kind{KindLogs, KindCache, KindBlacklist, KindWhitelist}
}

// LogDriver persists or emits structured log entries.
//
// Log must never fail the caller: a sink that cannot store an entry drops
// it. Query methods return newest-first.
type LogDriver interface {
	Name() string
	Log(e LogEntry)
	Logs(f LogFilter) []LogEntry
	// Pair returns the request and response-or-error entries sharing the
	// given request id; either may be nil.
	Pair(requestID string) (req, resp *LogEntry)
	// Orphans returns requests with no response and responses with no
	// request.
	Orphans() []LogEntry
	Clear()
	Cleanup()
	Stats() LogStats
	Close() error
}

// LogStats summarizes a log store.
type LogStats struct {
	TotalEntries int        `json:"totalEntries"`
	OldestEntry  *time.Time `json:"oldestEntry,omitempty"`
	NewestEntry  *time.Time `json:"newestEntry,omitempty"`
}

// CacheDriver stores resolved responses keyed per dnswire.CacheKey.
type CacheDriver interface {
	Name() string
	// Get returns the entry for key, or ok=false when missing or expired.
	// Expired entries are deleted on access. Hits and misses are recorded.
	Get(key string) (CachedResponse, bool)
	// Set stores value under key. A positive ttlOverride rewrites the
	// value's TTL and expiry before storing. Inserting past MaxSize evicts
	// the oldest entries by StoredAt until the size fits.
	Set(key string, value CachedResponse, ttlOverride time.Duration)
	Delete(key string) bool
	Has(key string) bool
	Keys() []string
	Size() int
	Clear()
	// Cleanup evicts expired entries and persists, for durable stores.
	Cleanup()
	EvictExpired() int
	EvictLRU(n int) int
	Stats() CacheStats
	Close() error
}

// CacheStats summarizes cache effectiveness.
type CacheStats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hitRate"`
	Evictions int64   `json:"evictions"`
}

// ListDriver is the shared contract of the blacklist and whitelist stores.
// Domains are normalized (lower-case, no trailing dot, no leading "*.")
// before storage and lookup.
type ListDriver interface {
	Name() string
	Add(domain, reason, category string) error
	Remove(domain string) bool
	// Contains applies exact match first, then wildcard patterns.
	Contains(domain string) bool
	// Match is Contains returning the matched entry.
	Match(domain string) (ListEntry, bool)
	List(category string) []ListEntry
	// Import inserts only domains not already present and returns the
	// number inserted.
	Import(entries []ListEntry) int
	Export() []ListEntry
	Clear()
	Cleanup()
	Stats() ListStats
	Close() error
}

// ListStats summarizes a domain list.
type ListStats struct {
	TotalEntries  int            `json:"totalEntries"`
	Categories    map[string]int `json:"categories"`
	Sources       map[string]int `json:"sources"`
	RecentlyAdded int            `json:"recentlyAdded"` // added in the last 24 h
}
