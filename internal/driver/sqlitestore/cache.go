package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheRow is the persisted form of a cached response: the packet in wire
// format plus the TTL bookkeeping. Timestamps are epoch milliseconds.
type CacheRow struct {
	Key       string
	Wire      []byte
	StoredAt  int64
	TTL       uint32
	ExpiresAt int64
}

// UpsertCacheEntry inserts or replaces one cache row.
func (db *DB) UpsertCacheEntry(row CacheRow) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		INSERT INTO cache_entries (key, wire, stored_at, ttl, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			wire = excluded.wire,
			stored_at = excluded.stored_at,
			ttl = excluded.ttl,
			expires_at = excluded.expires_at
	`
	if _, err := db.conn.Exec(query, row.Key, row.Wire, row.StoredAt, row.TTL, row.ExpiresAt); err != nil {
		return fmt.Errorf("failed to upsert cache entry %s: %w", row.Key, err)
	}
	return nil
}

// GetCacheEntry returns the row for key, or ok=false when absent.
func (db *DB) GetCacheEntry(key string) (CacheRow, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var row CacheRow
	err := db.conn.QueryRow(
		"SELECT key, wire, stored_at, ttl, expires_at FROM cache_entries WHERE key = ?", key,
	).Scan(&row.Key, &row.Wire, &row.StoredAt, &row.TTL, &row.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheRow{}, false, nil
	}
	if err != nil {
		return CacheRow{}, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return row, true, nil
}

// DeleteCacheEntry removes a row, reporting whether it existed.
func (db *DB) DeleteCacheEntry(key string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec("DELETE FROM cache_entries WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// CacheKeys returns every stored key.
func (db *DB) CacheKeys() ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query("SELECT key FROM cache_entries ORDER BY stored_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache keys: %w", err)
	}
	return keys, nil
}

// CacheSize returns the stored entry count.
func (db *DB) CacheSize() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// ClearCache removes every row.
func (db *DB) ClearCache() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec("DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	return nil
}

// DeleteExpiredCacheEntries removes rows whose expiry is past now and
// returns the number removed.
func (db *DB) DeleteExpiredCacheEntries(now time.Time) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec("DELETE FROM cache_entries WHERE expires_at <= ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to evict expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// DeleteOldestCacheEntries removes the n rows with the smallest stored_at
// and returns the number removed.
func (db *DB) DeleteOldestCacheEntries(n int) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		DELETE FROM cache_entries WHERE key IN (
			SELECT key FROM cache_entries ORDER BY stored_at LIMIT ?
		)
	`
	res, err := db.conn.Exec(query, n)
	if err != nil {
		return 0, fmt.Errorf("failed to evict oldest cache entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}
