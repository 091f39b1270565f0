// Package logdriver implements the log sink contract: console, in-memory
// ring buffer, JSON-lines file and SQLite variants.
package logdriver

import (
	"github.com/deckyfx/dnsgate/internal/driver"
)

// filterNewestFirst applies the filter to entries stored oldest-first and
// returns matches newest-first, honoring offset and limit.
func filterNewestFirst(entries []driver.LogEntry, f driver.LogFilter) []driver.LogEntry {
	out := make([]driver.LogEntry, 0, 32)
	skipped := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !f.Matches(e) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// pairFrom locates the request and response-or-error entries for an id.
func pairFrom(entries []driver.LogEntry, requestID string) (req, resp *driver.LogEntry) {
	for i := range entries {
		e := &entries[i]
		if e.ID != requestID {
			continue
		}
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

// orphansFrom returns requests with no matching response and responses with
// no matching request.
func orphansFrom(entries []driver.LogEntry) []driver.LogEntry {
	requests := map[string]bool{}
	responses := map[string]bool{}
	for _, e := range entries {
		switch e.Type {
		case driver.EntryRequest:
			requests[e.ID] = true
		case driver.EntryResponse, driver.EntryError:
			responses[e.ID] = true
		}
	}

	var out []driver.LogEntry
	for _, e := range entries {
		switch e.Type {
		case driver.EntryRequest:
			if !responses[e.ID] {
				out = append(out, e)
			}
		case driver.EntryResponse, driver.EntryError:
			if !requests[e.ID] {
				out = append(out, e)
			}
		}
	}
	return out
}

// statsFrom computes count and timestamp range of a slice of entries.
func statsFrom(entries []driver.LogEntry) driver.LogStats {
	stats := driver.LogStats{TotalEntries: len(entries)}
	if len(entries) > 0 {
		oldest := entries[0].Timestamp
		newest := entries[len(entries)-1].Timestamp
		stats.OldestEntry = &oldest
		stats.NewestEntry = &newest
	}
	return stats
}
