package manager

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckyfx/dnsgate/internal/config"
	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/driver/factory"
	"github.com/deckyfx/dnsgate/internal/events"
)

// freeUDPPort grabs an ephemeral port and releases it for the manager to
// bind.
func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func newTestManager(t *testing.T) (*Manager, *events.Bus) {
	t.Helper()
	dataDir := t.TempDir()
	store := config.NewStore(filepath.Join(dataDir, config.DefaultFileName), nil)
	bus := events.NewBus(nil)
	t.Cleanup(func() { bus.Close() })

	mgr, err := New(store, bus, factory.New(dataDir, nil), nil)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr, bus
}

func TestManagerAssemblesResolver(t *testing.T) {
	mgr, _ := newTestManager(t)

	r := mgr.Resolver()
	require.NotNil(t, r)
	assert.Equal(t, []string{"nextdns", "cloudflare", "system"}, r.ProviderNames())

	d := r.Drivers()
	assert.Equal(t, "console", d.Logs.Name())
	assert.Equal(t, "inmemory", d.Cache.Name())
	assert.Equal(t, "inmemory", d.Blacklist.Name())
	assert.Equal(t, "inmemory", d.Whitelist.Name())
}

func TestManagerStartStopToggle(t *testing.T) {
	mgr, bus := newTestManager(t)
	port := freeUDPPort(t)

	sub := bus.Subscribe([]string{events.ChannelStatus})
	defer bus.Unsubscribe(sub.ID)

	require.NoError(t, mgr.Start(port))
	st := mgr.Status()
	assert.True(t, st.Enabled)
	require.NotNil(t, st.Server)
	assert.Equal(t, port, st.Server.Port)
	assert.True(t, st.Server.IsRunning)

	// A status message reached the bus.
	select {
	case msg := <-sub.C:
		assert.Equal(t, events.ChannelStatus, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("no status event after start")
	}

	require.NoError(t, mgr.Stop())
	assert.False(t, mgr.Status().Enabled)

	require.NoError(t, mgr.Toggle())
	assert.True(t, mgr.Status().Enabled)
	require.NoError(t, mgr.Stop())
}

func TestManagerStartIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t)
	port := freeUDPPort(t)

	require.NoError(t, mgr.Start(port))
	require.NoError(t, mgr.Start(port), "second start is a no-op")
	require.NoError(t, mgr.Stop())
}

func TestSetNextDNSConfigID(t *testing.T) {
	mgr, _ := newTestManager(t)

	require.NoError(t, mgr.SetNextDNSConfigID("custom42"))
	assert.Equal(t, "custom42", mgr.Status().CurrentNextDNSConfigID)
	// Provider list rebuilt, still NextDNS-first.
	assert.Equal(t, "nextdns", mgr.Resolver().ProviderNames()[0])
}

func TestUpdateDriverConfiguration(t *testing.T) {
	mgr, bus := newTestManager(t)

	sub := bus.Subscribe([]string{events.ChannelBlacklistRefresh})
	defer bus.Unsubscribe(sub.ID)

	err := mgr.UpdateDriverConfiguration(map[driver.Kind]config.DriverConfig{
		driver.KindBlacklist: {Type: "optimized-file"},
	})
	require.NoError(t, err)
	assert.Equal(t, "optimized-file", mgr.Resolver().Drivers().Blacklist.Name())

	select {
	case msg := <-sub.C:
		assert.Equal(t, events.ChannelBlacklistRefresh, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("no refresh event after driver swap")
	}
}

func TestUpdateDriverConfigurationRejectsUnknown(t *testing.T) {
	mgr, _ := newTestManager(t)

	err := mgr.UpdateDriverConfiguration(map[driver.Kind]config.DriverConfig{
		driver.KindCache: {Type: "carrier-pigeon"},
	})
	require.Error(t, err)
	// The old driver is untouched.
	assert.Equal(t, "inmemory", mgr.Resolver().Drivers().Cache.Name())
}

func TestReloadConfig(t *testing.T) {
	mgr, _ := newTestManager(t)

	require.NoError(t, mgr.SetNextDNSConfigID("persisted"))
	require.NoError(t, mgr.ReloadConfig())
	assert.Equal(t, "persisted", mgr.Status().CurrentNextDNSConfigID)
}

func TestBuildProvidersSecondaryChoices(t *testing.T) {
	names := func(srv config.ServerConfig) []string {
		ps := buildProviders(srv)
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name()
		}
		return out
	}

	assert.Equal(t, []string{"nextdns", "google", "system"}, names(config.ServerConfig{SecondaryDNS: "google"}))
	assert.Equal(t, []string{"nextdns", "opendns", "system"}, names(config.ServerConfig{SecondaryDNS: "opendns"}))
	assert.Equal(t, []string{"nextdns", "cloudflare", "system"}, names(config.ServerConfig{SecondaryDNS: "cloudflare"}))
}
