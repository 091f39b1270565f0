package listdriver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckyfx/dnsgate/internal/driver"
)

func TestFileWALReplayAfterCrash(t *testing.T) {
	dir := t.TempDir()

	f, err := NewFile(dir, true, nil)
	require.NoError(t, err)

	require.NoError(t, f.Add("a.example", "", ""))
	require.NoError(t, f.Add("b.example", "", ""))
	require.NoError(t, f.Add("c.example", "", ""))
	f.Flush() // WAL written, no compaction

	// Crash: discard the in-memory state by reopening the directory.
	reopened, err := NewFile(dir, true, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.True(t, reopened.Contains("a.example"))
	assert.True(t, reopened.Contains("b.example"))
	assert.True(t, reopened.Contains("c.example"))
	assert.Len(t, reopened.List(""), 3)
}

func TestFileRemoveSurvivesReplay(t *testing.T) {
	dir := t.TempDir()

	f, err := NewFile(dir, true, nil)
	require.NoError(t, err)
	require.NoError(t, f.Add("a.example", "", ""))
	require.NoError(t, f.Add("b.example", "", ""))
	assert.True(t, f.Remove("a.example"))
	f.Flush()

	reopened, err := NewFile(dir, true, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.False(t, reopened.Contains("a.example"))
	assert.True(t, reopened.Contains("b.example"))
}

func TestFileCompaction(t *testing.T) {
	dir := t.TempDir()

	f, err := NewFile(dir, true, nil)
	require.NoError(t, err)
	require.NoError(t, f.Add("a.example", "", "ads"))
	f.Cleanup() // flush + compact regardless of WAL size

	walInfo, err := os.Stat(filepath.Join(dir, walLogFile))
	require.NoError(t, err)
	assert.Zero(t, walInfo.Size(), "WAL truncated after compaction")

	_, err = os.Stat(filepath.Join(dir, domainsFile))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, indexFile))
	require.NoError(t, err)

	require.NoError(t, f.Close())

	reopened, err := NewFile(dir, true, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.Contains("a.example"))

	e, ok := reopened.Match("a.example")
	require.True(t, ok)
	assert.Equal(t, "ads", e.Category)
}

func TestFileImportAndStats(t *testing.T) {
	dir := t.TempDir()

	f, err := NewFile(dir, true, nil)
	require.NoError(t, err)
	defer f.Close()

	inserted := f.Import([]driver.ListEntry{
		{Domain: "x.example"},
		{Domain: "y.example"},
		{Domain: "x.example"}, // duplicate within the batch
	})
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 2, f.Stats().TotalEntries)
}

func TestFileWildcardMatch(t *testing.T) {
	dir := t.TempDir()

	f, err := NewFile(dir, true, nil)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Add("doubleclick.net", "", ""))
	assert.True(t, f.Contains("ads.doubleclick.net"), "wildcard fallback after presence miss")
	assert.False(t, f.Contains("example.org"))
}
