// Package factory builds driver instances from their persisted string
// selection. Unknown names fail loudly at configuration load time; nothing
// in the hot path dispatches on strings.
package factory

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/driver/cachedriver"
	"github.com/deckyfx/dnsgate/internal/driver/listdriver"
	"github.com/deckyfx/dnsgate/internal/driver/logdriver"
)

// ErrUnknownDriver reports a driver type name with no registered
// constructor for the requested kind.
var ErrUnknownDriver = fmt.Errorf("unknown driver")

// Factory constructs drivers rooted under a data directory.
type Factory struct {
	dataDir string
	logger  *slog.Logger
}

// New creates a factory whose file and sqlite drivers live under dataDir.
func New(dataDir string, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{dataDir: dataDir, logger: logger}
}

// Available lists the driver type names per kind, for the control API and
// for config validation.
func Available() map[driver.Kind][]string {
	return map[driver.Kind][]string{
		driver.KindLogs:      {"console", "inmemory", "file", "sqlite"},
		driver.KindCache:     {"inmemory", "file", "optimized-file", "sqlite"},
		driver.KindBlacklist: {"inmemory", "file", "optimized-file", "sqlite"},
		driver.KindWhitelist: {"inmemory", "file", "optimized-file", "sqlite"},
	}
}

// Valid reports whether typeName names a known driver of the given kind.
func Valid(kind driver.Kind, typeName string) bool {
	for _, t := range Available()[kind] {
		if t == typeName {
			return true
		}
	}
	return false
}

// sqlitePath is the shared store file; all sqlite drivers can live in one
// database since their tables are independent.
func (f *Factory) sqlitePath(o driver.Options) string {
	return o.String("path", filepath.Join(f.dataDir, "dnsgate.db"))
}

// Logs builds a log driver of the named type.
func (f *Factory) Logs(typeName string, o driver.Options) (driver.LogDriver, error) {
	switch typeName {
	case "console":
		return logdriver.NewConsole(), nil
	case "inmemory":
		return logdriver.NewMemory(o.Int("maxEntries", logdriver.DefaultMaxEntries)), nil
	case "file":
		return logdriver.NewFile(
			o.String("path", filepath.Join(f.dataDir, "logs", "dns.log")),
			o.Int("maxEntries", logdriver.DefaultMaxEntries),
			o.Duration("retention", logdriver.DefaultRetention),
		)
	case "sqlite":
		return logdriver.NewSQLite(f.sqlitePath(o), o.Duration("retention", logdriver.DefaultRetention), f.logger)
	default:
		return nil, fmt.Errorf("%w: logs driver %q", ErrUnknownDriver, typeName)
	}
}

// Cache builds a cache driver of the named type.
func (f *Factory) Cache(typeName string, o driver.Options) (driver.CacheDriver, error) {
	maxSize := o.Int("maxSize", cachedriver.DefaultMaxSize)
	switch typeName {
	case "inmemory":
		return cachedriver.NewMemory(maxSize, o.Duration("cleanupInterval", cachedriver.DefaultCleanupInterval)), nil
	case "file":
		return cachedriver.NewSimpleFile(o.String("path", filepath.Join(f.dataDir, "cache.json")), maxSize, f.logger)
	case "optimized-file":
		return cachedriver.NewFile(o.String("dir", filepath.Join(f.dataDir, "cache")), maxSize, f.logger)
	case "sqlite":
		return cachedriver.NewSQLite(f.sqlitePath(o), maxSize, f.logger)
	default:
		return nil, fmt.Errorf("%w: cache driver %q", ErrUnknownDriver, typeName)
	}
}

// List builds a blacklist or whitelist driver of the named type.
func (f *Factory) List(kind driver.Kind, typeName string, o driver.Options) (driver.ListDriver, error) {
	wildcards := o.Bool("wildcards", true)
	name := string(kind)
	switch typeName {
	case "inmemory":
		return listdriver.NewMemory(wildcards), nil
	case "file":
		return listdriver.NewSimpleFile(o.String("path", filepath.Join(f.dataDir, name+".json")), wildcards, f.logger)
	case "optimized-file":
		return listdriver.NewFile(o.String("dir", filepath.Join(f.dataDir, name)), wildcards, f.logger)
	case "sqlite":
		return listdriver.NewSQLite(f.sqlitePath(o), name, wildcards, f.logger)
	default:
		return nil, fmt.Errorf("%w: %s driver %q", ErrUnknownDriver, kind, typeName)
	}
}
