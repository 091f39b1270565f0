package listdriver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/driver/sqlitestore"
)

// SQLite persists list entries through the shared SQLite store, partitioned
// by kind ("blacklist" / "whitelist"). Lookups run against an in-memory
// mirror, loaded from the database at open and on Cleanup and updated in
// place on every mutation, keeping the hot Contains path off the database.
type SQLite struct {
	db        *sqlitestore.DB
	kind      string
	wildcards bool
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]driver.ListEntry
}

// NewSQLite opens a SQLite-backed list of the given kind at path.
func NewSQLite(path, kind string, wildcards bool, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sqlitestore.Open(path)
	if err != nil {
		return nil, err
	}
	s := &SQLite{
		db:        db,
		kind:      kind,
		wildcards: wildcards,
		logger:    logger,
		entries:   map[string]driver.ListEntry{},
	}
	s.reload()
	return s, nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) reload() {
	rows, err := s.db.ListDomains(s.kind)
	if err != nil {
		s.logger.Error("list reload failed", "kind", s.kind, "err", err)
		return
	}
	entries := make(map[string]driver.ListEntry, len(rows))
	for _, e := range rows {
		entries[e.Domain] = e
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
}

func (s *SQLite) Add(domain, reason, category string) error {
	d := normalize(domain)
	if d == "" {
		return ErrEmptyDomain
	}
	e := driver.ListEntry{
		Domain:   d,
		Reason:   reason,
		Category: category,
		Source:   driver.SourceManual,
		AddedAt:  time.Now(),
	}
	if _, err := s.db.AddListDomain(s.kind, e); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[d] = e
	s.mu.Unlock()
	return nil
}

func (s *SQLite) Remove(domain string) bool {
	d := normalize(domain)
	ok, err := s.db.DeleteListDomain(s.kind, d)
	if err != nil {
		s.logger.Error("list remove failed", "kind", s.kind, "domain", d, "err", err)
		return false
	}
	if ok {
		s.mu.Lock()
		delete(s.entries, d)
		s.mu.Unlock()
	}
	return ok
}

func (s *SQLite) Contains(domain string) bool {
	_, ok := s.Match(domain)
	return ok
}

func (s *SQLite) Match(domain string) (driver.ListEntry, bool) {
	d := normalize(domain)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matchEntries(s.entries, d, s.wildcards)
}

func (s *SQLite) List(category string) []driver.ListEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listByCategory(s.entries, category)
}

func (s *SQLite) Import(entries []driver.ListEntry) int {
	inserted := 0
	for _, e := range entries {
		d := normalize(e.Domain)
		if d == "" {
			continue
		}
		e.Domain = d
		if e.Source == "" {
			e.Source = driver.SourceImport
		}
		if e.AddedAt.IsZero() {
			e.AddedAt = time.Now()
		}
		ok, err := s.db.AddListDomain(s.kind, e)
		if err != nil {
			s.logger.Error("list import failed", "kind", s.kind, "domain", d, "err", err)
			continue
		}
		if ok {
			s.mu.Lock()
			s.entries[d] = e
			s.mu.Unlock()
			inserted++
		}
	}
	return inserted
}

func (s *SQLite) Export() []driver.ListEntry {
	return s.List("")
}

func (s *SQLite) Clear() {
	if err := s.db.ClearList(s.kind); err != nil {
		s.logger.Error("list clear failed", "kind", s.kind, "err", err)
		return
	}
	s.mu.Lock()
	s.entries = map[string]driver.ListEntry{}
	s.mu.Unlock()
}

func (s *SQLite) Cleanup() {
	s.reload()
}

func (s *SQLite) Stats() driver.ListStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return statsFrom(s.entries)
}

func (s *SQLite) Close() error { return s.db.Close() }
