package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckyfx/dnsgate/internal/driver"
)

func storeAt(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), DefaultFileName), nil)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	doc := storeAt(t).Load()
	assert.Equal(t, DefaultPort, doc.Server.Port)
	assert.Equal(t, "cloudflare", doc.Server.SecondaryDNS)
	assert.Equal(t, "console", doc.Drivers.Logs.Type)
	assert.Equal(t, "inmemory", doc.Drivers.Cache.Type)
	assert.Nil(t, doc.LastUpdated)
}

func TestLoadMalformedFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	doc := NewStore(path, nil).Load()
	assert.Equal(t, DefaultPort, doc.Server.Port)
}

func TestLoadRevertsInvalidFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	raw := map[string]any{
		"server": map[string]any{
			"port":         -5,
			"secondaryDns": "quad9",
		},
		"drivers": map[string]any{
			"logs":      map[string]any{"type": "carrier-pigeon"},
			"cache":     map[string]any{"type": "optimized-file"},
			"blacklist": map[string]any{"type": ""},
			"whitelist": map[string]any{"type": "sqlite"},
		},
	}
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))

	doc := NewStore(path, nil).Load()
	assert.Equal(t, DefaultPort, doc.Server.Port)
	assert.Equal(t, "cloudflare", doc.Server.SecondaryDNS)
	assert.Equal(t, "console", doc.Drivers.Logs.Type, "unknown type reverts")
	assert.Equal(t, "optimized-file", doc.Drivers.Cache.Type, "valid type survives")
	assert.Equal(t, "inmemory", doc.Drivers.Blacklist.Type, "empty type reverts")
	assert.Equal(t, "sqlite", doc.Drivers.Whitelist.Type)
}

func TestSaveAndReload(t *testing.T) {
	s := storeAt(t)

	doc := Defaults()
	doc.Server.Port = 5353
	doc.Server.NextDNSConfigID = "abc123"
	doc.Drivers.Cache = DriverConfig{Type: "file", Options: driver.Options{"maxSize": float64(100)}}
	require.NoError(t, s.Save(doc))

	loaded := s.Load()
	assert.Equal(t, 5353, loaded.Server.Port)
	assert.Equal(t, "abc123", loaded.Server.NextDNSConfigID)
	assert.Equal(t, "file", loaded.Drivers.Cache.Type)
	assert.Equal(t, 100, loaded.Drivers.Cache.Options.Int("maxSize", 0))
	require.NotNil(t, loaded.LastUpdated)
}

func TestUpdateMergesUnderLock(t *testing.T) {
	s := storeAt(t)

	_, err := s.Update(func(d *Document) {
		d.Server.NextDNSConfigID = "first"
	})
	require.NoError(t, err)

	doc, err := s.Update(func(d *Document) {
		d.Drivers.Blacklist = DriverConfig{Type: "optimized-file"}
	})
	require.NoError(t, err)

	// The second update kept the first one's change.
	assert.Equal(t, "first", doc.Server.NextDNSConfigID)
	assert.Equal(t, "optimized-file", doc.Drivers.Blacklist.Type)
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv(EnvPort, "1053")
	t.Setenv(EnvNextDNSConfigID, "envid")

	doc := storeAt(t).Load()
	assert.Equal(t, 1053, doc.Server.Port)
	assert.Equal(t, "envid", doc.Server.NextDNSConfigID)
}

func TestDriversConfigGetSet(t *testing.T) {
	var d DriversConfig
	d.Set(driver.KindCache, DriverConfig{Type: "sqlite"})
	assert.Equal(t, "sqlite", d.Get(driver.KindCache).Type)
	assert.Equal(t, "", d.Get(driver.KindLogs).Type)
}
