package listdriver

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

// SimpleFile is the plain file list driver: one JSON document holding the
// whole list, rewritten on every mutation.
type SimpleFile struct {
	mu        sync.Mutex
	path      string
	entries   map[string]driver.ListEntry
	wildcards bool
	logger    *slog.Logger
}

// NewSimpleFile opens (or creates) a single-document list at path.
func NewSimpleFile(path string, wildcards bool, logger *slog.Logger) (*SimpleFile, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create list directory: %w", err)
	}

	s := &SimpleFile{
		path:      path,
		entries:   map[string]driver.ListEntry{},
		wildcards: wildcards,
		logger:    logger,
	}

	b, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(b, &s.entries); jsonErr != nil {
			logger.Warn("list file unreadable, starting empty", "err", jsonErr)
			s.entries = map[string]driver.ListEntry{}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read list file: %w", err)
	}
	return s, nil
}

// saveLocked rewrites the whole document. Caller holds s.mu.
func (s *SimpleFile) saveLocked() {
	b, err := json.Marshal(s.entries)
	if err != nil {
		s.logger.Error("list file marshal failed", "err", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		s.logger.Error("list file write failed", "err", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("list file rename failed", "err", err)
	}
}

func (s *SimpleFile) Name() string { return "file" }

func (s *SimpleFile) Add(domain, reason, category string) error {
	d := normalize(domain)
	if d == "" {
		return ErrEmptyDomain
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[d] = driver.ListEntry{
		Domain:   d,
		Reason:   reason,
		Category: category,
		Source:   driver.SourceManual,
		AddedAt:  time.Now(),
	}
	s.saveLocked()
	return nil
}

func (s *SimpleFile) Remove(domain string) bool {
	d := normalize(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[d]
	if ok {
		delete(s.entries, d)
		s.saveLocked()
	}
	return ok
}

func (s *SimpleFile) Contains(domain string) bool {
	_, ok := s.Match(domain)
	return ok
}

func (s *SimpleFile) Match(domain string) (driver.ListEntry, bool) {
	d := normalize(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	return matchEntries(s.entries, d, s.wildcards)
}

func (s *SimpleFile) List(category string) []driver.ListEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listByCategory(s.entries, category)
}

func (s *SimpleFile) Import(entries []driver.ListEntry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, e := range entries {
		d := normalize(e.Domain)
		if d == "" {
			continue
		}
		if _, exists := s.entries[d]; exists {
			continue
		}
		e.Domain = d
		if e.Source == "" {
			e.Source = driver.SourceImport
		}
		if e.AddedAt.IsZero() {
			e.AddedAt = time.Now()
		}
		s.entries[d] = e
		inserted++
	}
	if inserted > 0 {
		s.saveLocked()
	}
	return inserted
}

func (s *SimpleFile) Export() []driver.ListEntry {
	return s.List("")
}

func (s *SimpleFile) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]driver.ListEntry{}
	s.saveLocked()
}

func (s *SimpleFile) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked()
}

func (s *SimpleFile) Stats() driver.ListStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statsFrom(s.entries)
}

func (s *SimpleFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked()
	return nil
}
