package logdriver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckyfx/dnsgate/internal/driver"
)

func entry(id string, typ driver.EntryType, name string) driver.LogEntry {
	return driver.LogEntry{
		ID:        id,
		Type:      typ,
		Timestamp: time.Now(),
		Level:     driver.LevelInfo,
		Client:    &driver.ClientInfo{Address: "127.0.0.1", Port: 5353, Transport: "udp"},
		Query:     &driver.QueryInfo{Name: name, Type: "A", Class: "IN"},
		Processing: &driver.ProcessingInfo{
			Provider: "cloudflare",
			Success:  typ == driver.EntryResponse,
		},
	}
}

func TestMemoryLogAndFilter(t *testing.T) {
	m := NewMemory(100)

	m.Log(entry("1", driver.EntryRequest, "example.com"))
	m.Log(entry("1", driver.EntryResponse, "example.com"))
	m.Log(entry("2", driver.EntryRequest, "other.org"))

	all := m.Logs(driver.LogFilter{})
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "2", all[0].ID)

	byType := m.Logs(driver.LogFilter{Type: driver.EntryResponse})
	require.Len(t, byType, 1)
	assert.Equal(t, "1", byType[0].ID)

	byDomain := m.Logs(driver.LogFilter{Domain: "example"})
	assert.Len(t, byDomain, 2)

	byID := m.Logs(driver.LogFilter{RequestID: "2"})
	assert.Len(t, byID, 1)

	limited := m.Logs(driver.LogFilter{Limit: 2})
	assert.Len(t, limited, 2)

	offset := m.Logs(driver.LogFilter{Limit: 2, Offset: 2})
	require.Len(t, offset, 1)
	assert.Equal(t, driver.EntryRequest, offset[0].Type)
}

func TestMemoryRingBuffer(t *testing.T) {
	m := NewMemory(3)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		m.Log(entry(id, driver.EntryRequest, "example.com"))
	}

	all := m.Logs(driver.LogFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, "5", all[0].ID)
	assert.Equal(t, "3", all[2].ID)
}

func TestMemoryPairAndOrphans(t *testing.T) {
	m := NewMemory(100)
	m.Log(entry("1", driver.EntryRequest, "example.com"))
	m.Log(entry("1", driver.EntryResponse, "example.com"))
	m.Log(entry("2", driver.EntryRequest, "pending.org"))
	m.Log(entry("3", driver.EntryError, "lost.net"))

	req, resp := m.Pair("1")
	require.NotNil(t, req)
	require.NotNil(t, resp)
	assert.Equal(t, driver.EntryRequest, req.Type)
	assert.Equal(t, driver.EntryResponse, resp.Type)

	req, resp = m.Pair("2")
	require.NotNil(t, req)
	assert.Nil(t, resp)

	orphans := m.Orphans()
	require.Len(t, orphans, 2)
	ids := []string{orphans[0].ID, orphans[1].ID}
	assert.ElementsMatch(t, []string{"2", "3"}, ids)
}

func TestMemoryStatsAndClear(t *testing.T) {
	m := NewMemory(100)
	assert.Equal(t, 0, m.Stats().TotalEntries)
	assert.Nil(t, m.Stats().OldestEntry)

	m.Log(entry("1", driver.EntryRequest, "example.com"))
	m.Log(entry("2", driver.EntryRequest, "example.com"))

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	require.NotNil(t, stats.OldestEntry)
	require.NotNil(t, stats.NewestEntry)
	assert.False(t, stats.NewestEntry.Before(*stats.OldestEntry))

	m.Clear()
	assert.Equal(t, 0, m.Stats().TotalEntries)
}

func TestConsoleKeepsNoHistory(t *testing.T) {
	c := NewConsole()
	c.Log(entry("1", driver.EntryRequest, "example.com"))
	c.Log(entry("1", driver.EntryResponse, "example.com"))

	assert.Nil(t, c.Logs(driver.LogFilter{}))
	assert.Equal(t, 2, c.Stats().TotalEntries)

	c.Clear()
	assert.Equal(t, 0, c.Stats().TotalEntries)
}

func TestFilterBooleans(t *testing.T) {
	m := NewMemory(100)

	cachedEntry := entry("1", driver.EntryResponse, "example.com")
	cachedEntry.Processing.Cached = true
	m.Log(cachedEntry)

	blockedEntry := entry("2", driver.EntryResponse, "ads.example")
	blockedEntry.Processing.Blocked = true
	m.Log(blockedEntry)

	tr := true
	cachedOnly := m.Logs(driver.LogFilter{Cached: &tr})
	require.Len(t, cachedOnly, 1)
	assert.Equal(t, "1", cachedOnly[0].ID)

	blockedOnly := m.Logs(driver.LogFilter{Blocked: &tr})
	require.Len(t, blockedOnly, 1)
	assert.Equal(t, "2", blockedOnly[0].ID)
}
