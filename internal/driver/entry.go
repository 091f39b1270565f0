package driver

import (
	"strings"
	"time"

	"github.com/deckyfx/dnsgate/internal/dnswire"
)

// EntryType tags a log entry variant.
type EntryType string

const (
	EntryRequest     EntryType = "request"
	EntryResponse    EntryType = "response"
	EntryError       EntryType = "error"
	EntryServerEvent EntryType = "server_event"
)

// Level is the log entry severity.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ClientInfo identifies the querying client.
type ClientInfo struct {
	Address   string `json:"address"`
	Port      int    `json:"port"`
	Transport string `json:"transport"` // udp | tcp | doh
}

// QueryInfo identifies the DNS question being processed.
type QueryInfo struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Class string `json:"class"`
}

// ProcessingInfo carries the pipeline outcome for request/response/error
// entries. ResponseTime is omitted on request entries.
type ProcessingInfo struct {
	Provider     string  `json:"provider,omitempty"`
	ResponseTime float64 `json:"responseTime,omitempty"` // milliseconds
	Cached       bool    `json:"cached"`
	Blocked      bool    `json:"blocked"`
	Whitelisted  bool    `json:"whitelisted"`
	Success      bool    `json:"success"`
	Error        string  `json:"error,omitempty"`
}

// ServerEventInfo carries lifecycle details for server_event entries.
type ServerEventInfo struct {
	EventType     string         `json:"eventType"` // started | stopped | crashed
	Port          int            `json:"port,omitempty"`
	Message       string         `json:"message,omitempty"`
	ConfigChanges map[string]any `json:"configChanges,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorStack    string         `json:"errorStack,omitempty"`
}

// LogEntry is the tagged union over request, response, error and
// server_event entries. Query/Processing are nil on server events;
// ServerEvent is nil on everything else. Entries sharing an ID form a
// request/response pair.
type LogEntry struct {
	ID         string           `json:"id"`
	Type       EntryType        `json:"type"`
	Timestamp  time.Time        `json:"timestamp"`
	Level      Level            `json:"level"`
	Client     *ClientInfo      `json:"client,omitempty"`
	Query      *QueryInfo       `json:"query,omitempty"`
	Processing *ProcessingInfo  `json:"processing,omitempty"`
	Message    string           `json:"message,omitempty"`
	ServerEvent *ServerEventInfo `json:"serverEvent,omitempty"`
}

// LogFilter selects entries from a log store. Zero values mean "any".
type LogFilter struct {
	Type        EntryType
	Level       Level
	Domain      string // substring match on the query name
	Provider    string
	StartTime   time.Time
	EndTime     time.Time
	ClientIP    string
	Success     *bool
	Cached      *bool
	Blocked     *bool
	Whitelisted *bool
	RequestID   string
	Limit       int
	Offset      int
}

// Matches reports whether the entry passes every set filter field.
func (f LogFilter) Matches(e LogEntry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if f.RequestID != "" && e.ID != f.RequestID {
		return false
	}
	if f.Domain != "" {
		if e.Query == nil || !containsFold(e.Query.Name, f.Domain) {
			return false
		}
	}
	if f.Provider != "" {
		if e.Processing == nil || e.Processing.Provider != f.Provider {
			return false
		}
	}
	if f.ClientIP != "" {
		if e.Client == nil || e.Client.Address != f.ClientIP {
			return false
		}
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	if f.Success != nil && (e.Processing == nil || e.Processing.Success != *f.Success) {
		return false
	}
	if f.Cached != nil && (e.Processing == nil || e.Processing.Cached != *f.Cached) {
		return false
	}
	if f.Blocked != nil && (e.Processing == nil || e.Processing.Blocked != *f.Blocked) {
		return false
	}
	if f.Whitelisted != nil && (e.Processing == nil || e.Processing.Whitelisted != *f.Whitelisted) {
		return false
	}
	return true
}

// CachedResponse is a resolved response held by the cache. TTL is the
// minimum TTL across the packet's non-OPT records at store time; the entry
// is valid while now < ExpiresAt.
type CachedResponse struct {
	Packet     dnswire.Packet `json:"packet"`
	StoredAt   int64          `json:"storedAt"`  // epoch milliseconds
	TTLSeconds uint32         `json:"ttl"`       // seconds
	ExpiresAt  int64          `json:"expiresAt"` // epoch milliseconds
}

// NewCachedResponse stamps a packet with its TTL and expiry at now.
func NewCachedResponse(p dnswire.Packet, now time.Time) CachedResponse {
	ttl := dnswire.MinTTLSeconds(p)
	storedAt := now.UnixMilli()
	return CachedResponse{
		Packet:     p,
		StoredAt:   storedAt,
		TTLSeconds: ttl,
		ExpiresAt:  storedAt + int64(ttl)*1000,
	}
}

// Valid reports whether the entry has not expired at now.
func (c CachedResponse) Valid(now time.Time) bool {
	return now.UnixMilli() < c.ExpiresAt
}

// RemainingSeconds returns the TTL left at now, floored at zero.
func (c CachedResponse) RemainingSeconds(now time.Time) uint32 {
	ms := c.ExpiresAt - now.UnixMilli()
	if ms <= 0 {
		return 0
	}
	return uint32(ms / 1000)
}

// ListSource tags how a list entry was created.
type ListSource string

const (
	SourceManual ListSource = "manual"
	SourceImport ListSource = "import"
	SourceAuto   ListSource = "auto"
)

// ListEntry is one blacklist or whitelist row.
type ListEntry struct {
	Domain   string     `json:"domain"`
	Reason   string     `json:"reason,omitempty"`
	Category string     `json:"category,omitempty"`
	Source   ListSource `json:"source"`
	AddedAt  time.Time  `json:"addedAt"`
}

// containsFold matches case-insensitively; query names are stored
// lower-case but filter input comes from the API verbatim.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
