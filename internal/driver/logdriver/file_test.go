package logdriver

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckyfx/dnsgate/internal/driver"
)

func TestFilePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dns.log")

	f, err := NewFile(path, 100, DefaultRetention)
	require.NoError(t, err)
	f.Log(entry("1", driver.EntryRequest, "example.com"))
	f.Log(entry("1", driver.EntryResponse, "example.com"))
	require.NoError(t, f.Close())

	reopened, err := NewFile(path, 100, DefaultRetention)
	require.NoError(t, err)
	defer reopened.Close()

	all := reopened.Logs(driver.LogFilter{})
	require.Len(t, all, 2)

	req, resp := reopened.Pair("1")
	assert.NotNil(t, req)
	assert.NotNil(t, resp)
}

func TestFileCleanupRetention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dns.log")

	f, err := NewFile(path, 100, time.Hour)
	require.NoError(t, err)
	defer f.Close()

	old := entry("old", driver.EntryRequest, "stale.example")
	old.Timestamp = time.Now().Add(-2 * time.Hour)
	f.Log(old)
	f.Log(entry("new", driver.EntryRequest, "fresh.example"))

	f.Cleanup()

	all := f.Logs(driver.LogFilter{})
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].ID)

	// The rewrite is what a reopen sees.
	reopened, err := NewFile(path, 100, time.Hour)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Len(t, reopened.Logs(driver.LogFilter{}), 1)
}

func TestFileClearTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dns.log")

	f, err := NewFile(path, 100, DefaultRetention)
	require.NoError(t, err)
	defer f.Close()

	f.Log(entry("1", driver.EntryRequest, "example.com"))
	f.Clear()
	assert.Empty(t, f.Logs(driver.LogFilter{}))

	reopened, err := NewFile(path, 100, DefaultRetention)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Empty(t, reopened.Logs(driver.LogFilter{}))
}
