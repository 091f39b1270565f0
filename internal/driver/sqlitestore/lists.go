package sqlitestore

import (
	"fmt"
	"time"

	"github.com/deckyfx/dnsgate/internal/driver"
)

// AddListDomain inserts a domain into the named list, ignoring duplicates.
// Reports whether a row was actually inserted.
func (db *DB) AddListDomain(kind string, e driver.ListEntry) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		INSERT OR IGNORE INTO list_entries (kind, domain, reason, category, source, added_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := db.conn.Exec(query, kind, e.Domain, e.Reason, e.Category, string(e.Source), e.AddedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to add %s domain %s: %w", kind, e.Domain, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// DeleteListDomain removes a domain from the named list.
func (db *DB) DeleteListDomain(kind, domain string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec("DELETE FROM list_entries WHERE kind = ? AND domain = ?", kind, domain)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s domain %s: %w", kind, domain, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// ListDomains returns every entry of the named list, ordered by domain.
func (db *DB) ListDomains(kind string) ([]driver.ListEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(
		"SELECT domain, reason, category, source, added_at FROM list_entries WHERE kind = ? ORDER BY domain",
		kind,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s entries: %w", kind, err)
	}
	defer rows.Close()

	var out []driver.ListEntry
	for rows.Next() {
		var (
			e       driver.ListEntry
			source  string
			addedMs int64
		)
		if err := rows.Scan(&e.Domain, &e.Reason, &e.Category, &source, &addedMs); err != nil {
			return nil, fmt.Errorf("failed to scan %s entry: %w", kind, err)
		}
		e.Source = driver.ListSource(source)
		e.AddedAt = time.UnixMilli(addedMs)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s entries: %w", kind, err)
	}
	return out, nil
}

// ClearList removes every entry of the named list.
func (db *DB) ClearList(kind string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec("DELETE FROM list_entries WHERE kind = ?", kind); err != nil {
		return fmt.Errorf("failed to clear %s entries: %w", kind, err)
	}
	return nil
}
