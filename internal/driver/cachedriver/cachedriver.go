// Package cachedriver implements the hot-response cache contract: an
// in-memory map with periodic cleanup, a durable variant with an
// append-only operations log, and a SQLite variant.
//
// Eviction is LRU by insertion time (StoredAt): the oldest-stored entries
// go first, no per-access touch. TTL expiry is checked on read and by the
// background sweeps.
package cachedriver

import (
	"sort"

	"github.com/deckyfx/dnsgate/internal/driver"
)

// DefaultMaxSize bounds a cache when no size is configured.
const DefaultMaxSize = 10000

// oldestKeys returns up to n keys ordered by ascending StoredAt.
func oldestKeys(entries map[string]driver.CachedResponse, n int) []string {
	if n <= 0 || len(entries) == 0 {
		return nil
	}
	type aged struct {
		key      string
		storedAt int64
	}
	all := make([]aged, 0, len(entries))
	for k, v := range entries {
		all = append(all, aged{key: k, storedAt: v.StoredAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt < all[j].storedAt })

	if n > len(all) {
		n = len(all)
	}
	keys := make([]string, n)
	for i := range n {
		keys[i] = all[i].key
	}
	return keys
}

// applyOverride rewrites an entry's TTL and expiry for a Set with an
// explicit TTL override (milliseconds of validity from StoredAt).
func applyOverride(v driver.CachedResponse, overrideMs int64) driver.CachedResponse {
	v.TTLSeconds = uint32(overrideMs / 1000)
	v.ExpiresAt = v.StoredAt + overrideMs
	return v
}

// hitRate computes hits / (hits + misses), zero when idle.
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
