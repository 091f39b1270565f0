package logdriver

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/deckyfx/dnsgate/internal/driver"
)

// Console writes one human-formatted line per entry to stdout. It keeps no
// history: Logs and Orphans return nothing, Stats tracks only count and
// timestamp range.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	count  int
	first  time.Time
	last   time.Time
}

// NewConsole creates a console log sink writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Log(e driver.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		c.first = e.Timestamp
	}
	c.count++
	c.last = e.Timestamp

	fmt.Fprintln(c.out, formatLine(e))
}

func formatLine(e driver.LogEntry) string {
	ts := e.Timestamp.Format(time.RFC3339)

	if e.Type == driver.EntryServerEvent && e.ServerEvent != nil {
		return fmt.Sprintf("%s [%s] server %s port=%d %s",
			ts, e.Level, e.ServerEvent.EventType, e.ServerEvent.Port, e.ServerEvent.Message)
	}

	qname, qtype := "-", "-"
	if e.Query != nil {
		qname, qtype = e.Query.Name, e.Query.Type
	}
	client := "-"
	if e.Client != nil {
		client = fmt.Sprintf("%s:%d/%s", e.Client.Address, e.Client.Port, e.Client.Transport)
	}

	detail := ""
	if p := e.Processing; p != nil {
		switch {
		case p.Error != "":
			detail = fmt.Sprintf(" provider=%s error=%q", p.Provider, p.Error)
		case p.Blocked:
			detail = fmt.Sprintf(" blocked=%s", p.Provider)
		case p.Cached:
			detail = fmt.Sprintf(" cached responseTime=%.1fms", p.ResponseTime)
		case e.Type != driver.EntryRequest:
			detail = fmt.Sprintf(" provider=%s responseTime=%.1fms", p.Provider, p.ResponseTime)
		}
	}

	return fmt.Sprintf("%s [%s] %s %s %s %s%s", ts, e.Level, e.Type, client, qname, qtype, detail)
}

// Logs always returns nil: the console keeps no history.
func (c *Console) Logs(driver.LogFilter) []driver.LogEntry { return nil }

func (c *Console) Pair(string) (*driver.LogEntry, *driver.LogEntry) { return nil, nil }

func (c *Console) Orphans() []driver.LogEntry { return nil }

func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
	c.first = time.Time{}
	c.last = time.Time{}
}

func (c *Console) Cleanup() {}

func (c *Console) Stats() driver.LogStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := driver.LogStats{TotalEntries: c.count}
	if c.count > 0 {
		first, last := c.first, c.last
		stats.OldestEntry = &first
		stats.NewestEntry = &last
	}
	return stats
}

func (c *Console) Close() error { return nil }
