package logdriver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deckyfx/dnsgate/internal/driver"
)

// DefaultRetention is how long file-backed entries survive cleanup.
const DefaultRetention = 7 * 24 * time.Hour

// File appends one JSON document per line to a log file. An in-memory
// mirror (bounded like the memory driver) serves queries; Cleanup rewrites
// the file keeping only entries within the retention window.
type File struct {
	mu         sync.Mutex
	path       string
	entries    []driver.LogEntry // oldest first, mirror of the file tail
	maxEntries int
	retention  time.Duration
}

// NewFile opens (or creates) a JSON-lines log file and loads its tail into
// memory. A corrupt line is skipped, not fatal: the file is an append-only
// log and the last line may be a torn write.
func NewFile(path string, maxEntries int, retention time.Duration) (*File, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f := &File{path: path, maxEntries: maxEntries, retention: retention}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e driver.LogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		f.entries = append(f.entries, e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	if len(f.entries) > f.maxEntries {
		f.entries = f.entries[len(f.entries)-f.maxEntries:]
	}
	return nil
}

func (f *File) Name() string { return "file" }

func (f *File) Log(e driver.LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, e)
	if len(f.entries) > f.maxEntries {
		overflow := len(f.entries) - f.maxEntries
		f.entries = append(f.entries[:0], f.entries[overflow:]...)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.Write(append(line, '\n'))
}

func (f *File) Logs(filter driver.LogFilter) []driver.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filterNewestFirst(f.entries, filter)
}

func (f *File) Pair(requestID string) (*driver.LogEntry, *driver.LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, resp := pairFrom(f.entries, requestID)
	return cloneEntry(req), cloneEntry(resp)
}

func (f *File) Orphans() []driver.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return orphansFrom(f.entries)
}

func (f *File) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = f.entries[:0]
	_ = os.Truncate(f.path, 0)
}

// Cleanup drops entries older than the retention window and rewrites the
// file from the surviving entries.
func (f *File) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := time.Now().Add(-f.retention)
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	f.entries = kept
	_ = f.rewrite()
}

// rewrite replaces the file with the in-memory entries via a temp file.
func (f *File) rewrite() error {
	tmp := f.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp log file: %w", err)
	}

	w := bufio.NewWriter(file)
	for _, e := range f.entries {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush log file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *File) Stats() driver.LogStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return statsFrom(f.entries)
}

func (f *File) Close() error { return nil }
