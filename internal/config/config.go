// Package config manages the persisted configuration document at
// data/dns-config.json: server settings plus the driver selection per slot.
//
// The document is a mutable store, not a boot-time config: the manager
// rewrites it whenever the operator changes a driver or the NextDNS config
// id. Load never fails — a missing file yields defaults, a malformed file
// warns and yields defaults, and invalid fields revert individually.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/driver/factory"
)

// Environment variables consumed when the document has no value.
const (
	EnvPort            = "DNS_PROXY_PORT"
	EnvNextDNSConfigID = "NEXTDNS_CONFIG_ID"
)

// DefaultPort is the standard DNS port.
const DefaultPort = 53

// DefaultFileName is the document location relative to the data directory.
const DefaultFileName = "dns-config.json"

// secondaryChoices lists the accepted SecondaryDNS values, the
// non-NextDNS fallback provider.
var secondaryChoices = map[string]bool{
	"cloudflare": true,
	"google":     true,
	"opendns":    true,
}

// ServerConfig is the server section of the document.
type ServerConfig struct {
	Port            int    `json:"port"`
	NextDNSConfigID string `json:"nextdnsConfigId"`
	EnableWhitelist bool   `json:"enableWhitelist"`
	SecondaryDNS    string `json:"secondaryDns"`
}

// DriverConfig selects one driver implementation by type name.
type DriverConfig struct {
	Type    string         `json:"type"`
	Options driver.Options `json:"options,omitempty"`
}

// DriversConfig holds the selection for all four slots.
type DriversConfig struct {
	Logs      DriverConfig `json:"logs"`
	Cache     DriverConfig `json:"cache"`
	Blacklist DriverConfig `json:"blacklist"`
	Whitelist DriverConfig `json:"whitelist"`
}

// Get returns the selection for a slot.
func (d *DriversConfig) Get(kind driver.Kind) DriverConfig {
	switch kind {
	case driver.KindLogs:
		return d.Logs
	case driver.KindCache:
		return d.Cache
	case driver.KindBlacklist:
		return d.Blacklist
	default:
		return d.Whitelist
	}
}

// Set replaces the selection for a slot.
func (d *DriversConfig) Set(kind driver.Kind, cfg DriverConfig) {
	switch kind {
	case driver.KindLogs:
		d.Logs = cfg
	case driver.KindCache:
		d.Cache = cfg
	case driver.KindBlacklist:
		d.Blacklist = cfg
	case driver.KindWhitelist:
		d.Whitelist = cfg
	}
}

// Document is the whole persisted configuration.
type Document struct {
	Server      ServerConfig  `json:"server"`
	Drivers     DriversConfig `json:"drivers"`
	LastUpdated *time.Time    `json:"lastUpdated"`
}

// Defaults builds the document used when nothing is persisted, honoring the
// environment fallbacks.
func Defaults() Document {
	port := DefaultPort
	if v := os.Getenv(EnvPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p <= 65535 {
			port = p
		}
	}
	return Document{
		Server: ServerConfig{
			Port:            port,
			NextDNSConfigID: os.Getenv(EnvNextDNSConfigID),
			EnableWhitelist: false,
			SecondaryDNS:    "cloudflare",
		},
		Drivers: DriversConfig{
			Logs:      DriverConfig{Type: "console"},
			Cache:     DriverConfig{Type: "inmemory"},
			Blacklist: DriverConfig{Type: "inmemory"},
			Whitelist: DriverConfig{Type: "inmemory"},
		},
	}
}

// Store serializes access to the document file: Load, Save and Update all
// run under one mutex so concurrent reconfigurations cannot interleave
// read-merge-write cycles.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewStore creates a store for the document at path ("" uses
// ./data/dns-config.json).
func NewStore(path string, logger *slog.Logger) *Store {
	if path == "" {
		path = filepath.Join("data", DefaultFileName)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Load reads and validates the document. It never fails: any unreadable
// layer degrades to defaults.
func (s *Store) Load() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() Document {
	defaults := Defaults()

	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return defaults
	}
	if err != nil {
		s.logger.Warn("config unreadable, using defaults", "path", s.path, "err", err)
		return defaults
	}

	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		s.logger.Warn("config malformed, using defaults", "path", s.path, "err", err)
		return defaults
	}

	return s.validate(doc, defaults)
}

// validate reverts invalid fields to their defaults, warning per field.
func (s *Store) validate(doc, defaults Document) Document {
	if doc.Server.Port <= 0 || doc.Server.Port > 65535 {
		s.logger.Warn("invalid server.port, reverting to default", "port", doc.Server.Port)
		doc.Server.Port = defaults.Server.Port
	}
	if doc.Server.SecondaryDNS == "" || !secondaryChoices[doc.Server.SecondaryDNS] {
		if doc.Server.SecondaryDNS != "" {
			s.logger.Warn("invalid server.secondaryDns, reverting to default", "value", doc.Server.SecondaryDNS)
		}
		doc.Server.SecondaryDNS = defaults.Server.SecondaryDNS
	}

	for _, kind := range driver.Kinds() {
		cfg := doc.Drivers.Get(kind)
		if cfg.Type == "" || !factory.Valid(kind, cfg.Type) {
			if cfg.Type != "" {
				s.logger.Warn("unknown driver type, reverting to default",
					"kind", string(kind), "type", cfg.Type)
			}
			doc.Drivers.Set(kind, defaults.Drivers.Get(kind))
		}
	}
	return doc
}

// Save writes the document, stamping LastUpdated.
func (s *Store) Save(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(doc)
}

func (s *Store) saveLocked(doc Document) error {
	now := time.Now().UTC()
	doc.LastUpdated = &now

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Update runs a read-merge-write cycle under the store lock and returns the
// resulting document.
func (s *Store) Update(mutate func(*Document)) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.loadLocked()
	mutate(&doc)
	doc = s.validate(doc, Defaults())
	if err := s.saveLocked(doc); err != nil {
		return doc, err
	}
	return doc, nil
}
