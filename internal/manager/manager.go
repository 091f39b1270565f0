// Package manager owns the process lifecycle: it loads the persisted
// configuration, assembles the resolver from factory-built drivers and the
// provider list, runs the UDP listener, and applies reconfiguration
// atomically. One Manager instance exists per process, owned by main.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deckyfx/dnsgate/internal/config"
	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/driver/factory"
	"github.com/deckyfx/dnsgate/internal/events"
	"github.com/deckyfx/dnsgate/internal/provider"
	"github.com/deckyfx/dnsgate/internal/resolver"
	"github.com/deckyfx/dnsgate/internal/server"
)

// ServerStatus describes the running listener.
type ServerStatus struct {
	IsRunning bool     `json:"isRunning"`
	Port      int      `json:"port"`
	Providers []string `json:"providers"`
}

// Status is the manager state surfaced over the API and the status channel.
type Status struct {
	Enabled                bool          `json:"enabled"`
	Server                 *ServerStatus `json:"server,omitempty"`
	CurrentNextDNSConfigID string        `json:"currentNextDnsConfigId,omitempty"`
}

// Manager is the lifecycle controller.
type Manager struct {
	mu      sync.Mutex
	store   *config.Store
	bus     *events.Bus
	factory *factory.Factory
	tracker *provider.Tracker
	logger  *slog.Logger

	doc      config.Document
	resolver *resolver.Resolver
	udp      *server.UDPServer
	cancel   context.CancelFunc
	stopped  chan struct{}
	running  bool
	port     int
}

// New creates the manager and eagerly assembles the resolver so DoH and the
// control API work before (and after) the UDP listener runs.
func New(store *config.Store, bus *events.Bus, f *factory.Factory, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:   store,
		bus:     bus,
		factory: f,
		tracker: provider.NewTracker(0),
		logger:  logger,
	}

	m.doc = store.Load()
	drivers, err := m.buildDrivers(m.doc)
	if err != nil {
		return nil, err
	}
	m.resolver = resolver.New(resolver.Config{
		Providers: buildProviders(m.doc.Server),
		Drivers:   drivers,
		Bus:       bus,
		Tracker:   m.tracker,
		Logger:    logger,
	})
	return m, nil
}

// Resolver exposes the pipeline for the DoH handler and control API.
func (m *Manager) Resolver() *resolver.Resolver { return m.resolver }

// buildDrivers constructs all four drivers from the document.
func (m *Manager) buildDrivers(doc config.Document) (resolver.Drivers, error) {
	var d resolver.Drivers
	var err error

	logsCfg := doc.Drivers.Logs
	if d.Logs, err = m.factory.Logs(logsCfg.Type, logsCfg.Options); err != nil {
		return d, fmt.Errorf("building logs driver: %w", err)
	}
	cacheCfg := doc.Drivers.Cache
	if d.Cache, err = m.factory.Cache(cacheCfg.Type, cacheCfg.Options); err != nil {
		return d, fmt.Errorf("building cache driver: %w", err)
	}
	blCfg := doc.Drivers.Blacklist
	if d.Blacklist, err = m.factory.List(driver.KindBlacklist, blCfg.Type, blCfg.Options); err != nil {
		return d, fmt.Errorf("building blacklist driver: %w", err)
	}
	wlCfg := doc.Drivers.Whitelist
	if d.Whitelist, err = m.factory.List(driver.KindWhitelist, wlCfg.Type, wlCfg.Options); err != nil {
		return d, fmt.Errorf("building whitelist driver: %w", err)
	}
	return d, nil
}

// buildProviders assembles the prioritized upstream list: NextDNS, the
// configured secondary, then the host resolver as last resort.
func buildProviders(srv config.ServerConfig) []provider.Provider {
	providers := []provider.Provider{provider.NewNextDNS(srv.NextDNSConfigID)}
	switch srv.SecondaryDNS {
	case "google":
		providers = append(providers, provider.NewGoogle())
	case "opendns":
		providers = append(providers, provider.NewOpenDNS())
	default:
		providers = append(providers, provider.NewCloudflare())
	}
	return append(providers, provider.NewSystem())
}

// Start brings the UDP listener up on the given port (0 uses the persisted
// port). A failed start emits a crashed server event and leaves the manager
// disabled.
func (m *Manager) Start(port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.doc = m.store.Load()
	if port <= 0 {
		port = m.doc.Server.Port
	}

	addr := net.JoinHostPort("", strconv.Itoa(port))
	ctx, cancel := context.WithCancel(context.Background())
	udp := &server.UDPServer{Logger: m.logger, Resolver: m.resolver}
	stopped := make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		defer close(stopped)
		errCh <- udp.Run(ctx, addr)
	}()

	// Give the bind a moment to fail synchronously so the caller learns
	// about port conflicts immediately.
	select {
	case err := <-errCh:
		if err != nil {
			cancel()
			m.emitServerEvent("crashed", port, "dns server failed to start", nil, err)
			m.publishStatus()
			return err
		}
	case <-time.After(150 * time.Millisecond):
	}

	m.udp = udp
	m.cancel = cancel
	m.stopped = stopped
	m.running = true
	m.port = port

	go func() {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			m.logger.Error("dns server crashed", "err", err)
			m.mu.Lock()
			m.running = false
			st := m.statusLocked()
			m.mu.Unlock()
			m.emitServerEvent("crashed", port, "dns server crashed", nil, err)
			m.bus.Publish(events.ChannelStatus, st)
		}
	}()

	m.emitServerEvent("started", port, "dns server started", m.configChanges(), nil)
	m.publishStatus()
	m.publishInfo("server started")
	return nil
}

// Stop halts the UDP listener.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.cancel()
	select {
	case <-m.stopped:
	case <-time.After(6 * time.Second):
	}
	m.running = false
	port := m.port

	m.emitServerEvent("stopped", port, "dns server stopped", nil, nil)
	m.publishStatus()
	return nil
}

// Toggle starts the listener if stopped, stops it otherwise.
func (m *Manager) Toggle() error {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	if running {
		return m.Stop()
	}
	return m.Start(0)
}

// SetNextDNSConfigID swaps the NextDNS provider for one bound to the new id
// and persists it.
func (m *Manager) SetNextDNSConfigID(id string) error {
	doc, err := m.store.Update(func(d *config.Document) {
		d.Server.NextDNSConfigID = id
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.doc = doc
	m.resolver.UpdateProviders(buildProviders(doc.Server))
	m.mu.Unlock()

	m.publishInfo("nextdns config id updated")
	return nil
}

// UpdateDriverConfiguration atomically swaps the named drivers on the
// resolver and persists the new selection. Old drivers are closed after the
// swap; in-flight queries finish against the snapshot they loaded.
func (m *Manager) UpdateDriverConfiguration(partial map[driver.Kind]config.DriverConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.resolver.Drivers()
	for kind, cfg := range partial {
		var (
			built any
			err   error
		)
		switch kind {
		case driver.KindLogs:
			built, err = m.factory.Logs(cfg.Type, cfg.Options)
		case driver.KindCache:
			built, err = m.factory.Cache(cfg.Type, cfg.Options)
		case driver.KindBlacklist, driver.KindWhitelist:
			built, err = m.factory.List(kind, cfg.Type, cfg.Options)
		default:
			err = fmt.Errorf("unknown driver kind %q", kind)
		}
		if err != nil {
			return err
		}
		m.resolver.SetDriver(kind, built)
		closeOldDriver(old, kind)
		m.bus.Publish(refreshChannel(kind), map[string]any{"driver": cfg.Type})
	}

	doc, err := m.store.Update(func(d *config.Document) {
		for kind, cfg := range partial {
			d.Drivers.Set(kind, cfg)
		}
	})
	if err != nil {
		return err
	}
	m.doc = doc

	m.publishInfo("driver configuration updated")
	return nil
}

// ReloadConfig re-executes the load path: rebuild drivers and providers
// from the persisted document.
func (m *Manager) ReloadConfig() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := m.store.Load()
	drivers, err := m.buildDrivers(doc)
	if err != nil {
		return err
	}

	old := m.resolver.Drivers()
	m.resolver.SetDrivers(drivers)
	m.resolver.UpdateProviders(buildProviders(doc.Server))
	for _, kind := range driver.Kinds() {
		closeOldDriver(old, kind)
	}
	m.doc = doc

	m.publishInfo("configuration reloaded")
	return nil
}

// Status reports the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// TrackerSnapshot exposes the per-provider counters.
func (m *Manager) TrackerSnapshot() map[string]provider.TrackerStats {
	return m.tracker.Snapshot()
}

// Close shuts the listener and every driver down.
func (m *Manager) Close() error {
	_ = m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.resolver.Drivers()
	for _, c := range []interface{ Close() error }{d.Logs, d.Cache, d.Blacklist, d.Whitelist} {
		if c != nil {
			_ = c.Close()
		}
	}
	return nil
}

// configChanges summarizes what a start event brings up.
func (m *Manager) configChanges() map[string]any {
	return map[string]any{
		"providers":   m.resolver.ProviderNames(),
		"driverCount": len(driver.Kinds()),
	}
}

// emitServerEvent writes a server_event entry to the log driver and the
// event bus.
func (m *Manager) emitServerEvent(eventType string, port int, message string, changes map[string]any, cause error) {
	ev := &driver.ServerEventInfo{
		EventType:     eventType,
		Port:          port,
		Message:       message,
		ConfigChanges: changes,
	}
	level := driver.LevelInfo
	if cause != nil {
		ev.Error = cause.Error()
		ev.ErrorStack = string(debug.Stack())
		level = driver.LevelError
	}
	entry := driver.LogEntry{
		ID:          uuid.New().String(),
		Type:        driver.EntryServerEvent,
		Timestamp:   time.Now(),
		Level:       level,
		Message:     message,
		ServerEvent: ev,
	}

	m.bus.Publish(events.ChannelLogEvent, entry)
	if logs := m.resolver.Drivers().Logs; logs != nil {
		go logs.Log(entry)
	}
}

func (m *Manager) publishStatus() {
	m.bus.Publish(events.ChannelStatus, m.statusLocked())
}

// statusLocked mirrors Status without re-acquiring the mutex; callers that
// already hold it publish through this.
func (m *Manager) statusLocked() Status {
	st := Status{
		Enabled:                m.running,
		CurrentNextDNSConfigID: m.doc.Server.NextDNSConfigID,
	}
	if m.running {
		st.Server = &ServerStatus{IsRunning: true, Port: m.port, Providers: m.resolver.ProviderNames()}
	}
	return st
}

func (m *Manager) publishInfo(summary string) {
	m.bus.Publish(events.ChannelInfo, map[string]any{
		"summary":   summary,
		"providers": m.resolver.ProviderNames(),
	})
}

func refreshChannel(kind driver.Kind) string {
	switch kind {
	case driver.KindLogs:
		return events.ChannelLogRefresh
	case driver.KindCache:
		return events.ChannelCacheRefresh
	case driver.KindBlacklist:
		return events.ChannelBlacklistRefresh
	default:
		return events.ChannelWhitelistRefresh
	}
}

// closeOldDriver closes the replaced driver for a slot.
func closeOldDriver(old resolver.Drivers, kind driver.Kind) {
	switch kind {
	case driver.KindLogs:
		if old.Logs != nil {
			_ = old.Logs.Close()
		}
	case driver.KindCache:
		if old.Cache != nil {
			_ = old.Cache.Close()
		}
	case driver.KindBlacklist:
		if old.Blacklist != nil {
			_ = old.Blacklist.Close()
		}
	case driver.KindWhitelist:
		if old.Whitelist != nil {
			_ = old.Whitelist.Close()
		}
	}
}
