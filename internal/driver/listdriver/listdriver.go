// Package listdriver implements the shared blacklist / whitelist store
// contract: in-memory map, WAL-backed file store and SQLite variants. The
// same implementations serve both roles; only the resolver's interpretation
// differs.
package listdriver

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/deckyfx/dnsgate/internal/dnswire"
	"github.com/deckyfx/dnsgate/internal/driver"
)

// ErrEmptyDomain rejects adds whose domain normalizes to nothing.
var ErrEmptyDomain = errors.New("empty domain")

// normalize canonicalizes a stored or queried domain: lower-case, no
// trailing dot. A leading "*." collapses into the implicit subdomain rule
// of MatchesPattern, so it is stripped rather than stored.
func normalize(domain string) string {
	return dnswire.NormalizeName(strings.TrimSpace(domain))
}

// MatchesPattern reports whether a domain matches a stored pattern:
//
//  1. exact equality,
//  2. a pattern containing '*' matches as a dot-escaped regular expression
//     with '*' standing for any run of characters,
//  3. any pattern implicitly matches its subdomains (domain ends with
//     "." + pattern).
//
// Both sides are expected to be normalized already.
func MatchesPattern(pattern, domain string) bool {
	if pattern == domain {
		return true
	}
	if strings.Contains(pattern, "*") {
		escaped := regexp.QuoteMeta(pattern)
		escaped = strings.ReplaceAll(escaped, `\*`, ".*")
		if re, err := regexp.Compile("^" + escaped + "$"); err == nil && re.MatchString(domain) {
			return true
		}
	}
	return strings.HasSuffix(domain, "."+pattern)
}

// matchEntries applies exact match first, then a linear wildcard pass.
func matchEntries(entries map[string]driver.ListEntry, domain string, wildcards bool) (driver.ListEntry, bool) {
	if e, ok := entries[domain]; ok {
		return e, true
	}
	if !wildcards {
		return driver.ListEntry{}, false
	}
	for pattern, e := range entries {
		if MatchesPattern(pattern, domain) {
			return e, true
		}
	}
	return driver.ListEntry{}, false
}

// statsFrom aggregates list statistics over the entry map.
func statsFrom(entries map[string]driver.ListEntry) driver.ListStats {
	stats := driver.ListStats{
		TotalEntries: len(entries),
		Categories:   map[string]int{},
		Sources:      map[string]int{},
	}
	dayAgo := time.Now().Add(-24 * time.Hour)
	for _, e := range entries {
		if e.Category != "" {
			stats.Categories[e.Category]++
		}
		stats.Sources[string(e.Source)]++
		if e.AddedAt.After(dayAgo) {
			stats.RecentlyAdded++
		}
	}
	return stats
}

// listByCategory returns the entries of one category (all entries when
// category is empty). Map order is unspecified, so callers get them
// filtered but unordered; API layers sort when presenting.
func listByCategory(entries map[string]driver.ListEntry, category string) []driver.ListEntry {
	out := make([]driver.ListEntry, 0, len(entries))
	for _, e := range entries {
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	return out
}
