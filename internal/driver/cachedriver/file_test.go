package cachedriver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWALReplayAfterCrash(t *testing.T) {
	dir := t.TempDir()

	f, err := NewFile(dir, 100, nil)
	require.NoError(t, err)

	f.Set("a:A:IN", testEntry("a.example", 300), 0)
	f.Set("b:A:IN", testEntry("b.example", 300), 0)
	f.Delete("a:A:IN")

	// Crash: abandon the driver without Close, so no snapshot is written
	// and the WAL alone must reconstruct the state.
	reopened, err := NewFile(dir, 100, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.False(t, reopened.Has("a:A:IN"))
	assert.True(t, reopened.Has("b:A:IN"))
	assert.Equal(t, 1, reopened.Size())

	got, ok := reopened.Get("b:A:IN")
	require.True(t, ok)
	assert.Equal(t, uint32(300), got.TTLSeconds)
	require.Len(t, got.Packet.Answers, 1)
}

func TestFileSnapshotAndTruncate(t *testing.T) {
	dir := t.TempDir()

	f, err := NewFile(dir, 100, nil)
	require.NoError(t, err)

	f.Set("a:A:IN", testEntry("a.example", 300), 0)
	f.Cleanup() // evict expired + persist: snapshot written, WAL truncated

	walInfo, err := os.Stat(filepath.Join(dir, walFile))
	require.NoError(t, err)
	assert.Zero(t, walInfo.Size(), "WAL truncated after save")

	_, err = os.Stat(filepath.Join(dir, snapshotFile))
	require.NoError(t, err)

	require.NoError(t, f.Close())

	reopened, err := NewFile(dir, 100, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.Has("a:A:IN"))
}

func TestFileClearSurvivesReplay(t *testing.T) {
	dir := t.TempDir()

	f, err := NewFile(dir, 100, nil)
	require.NoError(t, err)
	f.Set("a:A:IN", testEntry("a.example", 300), 0)
	f.Clear()
	f.Set("b:A:IN", testEntry("b.example", 300), 0)

	reopened, err := NewFile(dir, 100, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.False(t, reopened.Has("a:A:IN"))
	assert.True(t, reopened.Has("b:A:IN"))
}

func TestFileExpiredDroppedOnReopen(t *testing.T) {
	dir := t.TempDir()

	f, err := NewFile(dir, 100, nil)
	require.NoError(t, err)

	stale := testEntry("stale.example", 300)
	stale.ExpiresAt = time.Now().Add(-time.Minute).UnixMilli()
	f.Set("stale:A:IN", stale, 0)
	require.NoError(t, f.Close())

	reopened, err := NewFile(dir, 100, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 0, reopened.Size())
}
