package logdriver

import (
	"log/slog"
	"time"

	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/driver/sqlitestore"
)

// SQLite persists log entries through the shared SQLite store. Store
// failures are logged and otherwise swallowed: a log sink must never fail
// the resolver.
type SQLite struct {
	db        *sqlitestore.DB
	logger    *slog.Logger
	retention time.Duration
}

// NewSQLite opens a SQLite-backed log store at the given path.
func NewSQLite(path string, retention time.Duration, logger *slog.Logger) (*SQLite, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sqlitestore.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: db, logger: logger, retention: retention}, nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Log(e driver.LogEntry) {
	if err := s.db.InsertLog(e); err != nil {
		s.logger.Error("log insert failed", "err", err)
	}
}

func (s *SQLite) Logs(f driver.LogFilter) []driver.LogEntry {
	entries, err := s.db.QueryLogs(f)
	if err != nil {
		s.logger.Error("log query failed", "err", err)
		return nil
	}
	return entries
}

func (s *SQLite) Pair(requestID string) (*driver.LogEntry, *driver.LogEntry) {
	entries, err := s.db.QueryLogs(driver.LogFilter{RequestID: requestID})
	if err != nil {
		s.logger.Error("log pair query failed", "err", err)
		return nil, nil
	}

	var req, resp *driver.LogEntry
	for i := range entries {
		e := &entries[i]
		switch e.Type {
		case driver.EntryRequest:
			if req == nil {
				req = e
			}
		case driver.EntryResponse, driver.EntryError:
			if resp == nil {
				resp = e
			}
		}
	}
	return req, resp
}

func (s *SQLite) Orphans() []driver.LogEntry {
	entries, err := s.db.QueryLogs(driver.LogFilter{})
	if err != nil {
		s.logger.Error("log orphan query failed", "err", err)
		return nil
	}
	return orphansFrom(entries)
}

func (s *SQLite) Clear() {
	if err := s.db.ClearLogs(); err != nil {
		s.logger.Error("log clear failed", "err", err)
	}
}

func (s *SQLite) Cleanup() {
	n, err := s.db.DeleteLogsBefore(time.Now().Add(-s.retention))
	if err != nil {
		s.logger.Error("log cleanup failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Debug("log entries pruned", "count", n)
	}
}

func (s *SQLite) Stats() driver.LogStats {
	stats, err := s.db.LogStats()
	if err != nil {
		s.logger.Error("log stats failed", "err", err)
		return driver.LogStats{}
	}
	return stats
}

func (s *SQLite) Close() error { return s.db.Close() }
