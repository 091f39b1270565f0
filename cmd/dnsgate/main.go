// dnsgate is a recursive DNS proxy: it answers queries over UDP and DoH,
// resolves them through prioritized DoH upstreams, and runs every query
// through a whitelist/blacklist gate, a response cache and a log sink.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/deckyfx/dnsgate/internal/api"
	"github.com/deckyfx/dnsgate/internal/config"
	"github.com/deckyfx/dnsgate/internal/driver/factory"
	"github.com/deckyfx/dnsgate/internal/events"
	"github.com/deckyfx/dnsgate/internal/logging"
	"github.com/deckyfx/dnsgate/internal/manager"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values. They override the
// persisted document for this run but are never written back to it.
type cliFlags struct {
	dataDir  string
	port     int
	apiHost  string
	apiPort  int
	noServe  bool
	jsonLogs bool
	debug    bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.dataDir, "data", "data", "Data directory (config, driver files)")
	flag.IntVar(&f.port, "port", 0, "Override DNS server port")
	flag.StringVar(&f.apiHost, "api-host", "127.0.0.1", "Control API / DoH bind host")
	flag.IntVar(&f.apiPort, "api-port", 8080, "Control API / DoH bind port")
	flag.BoolVar(&f.noServe, "no-serve", false, "Do not start the UDP listener (API and DoH only)")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

func run() error {
	flags := parseFlags()

	level := "INFO"
	if flags.debug {
		level = "DEBUG"
	}
	logger := logging.Configure(logging.Config{
		Level:            level,
		Structured:       flags.jsonLogs,
		StructuredFormat: "json",
	})

	store := config.NewStore(filepath.Join(flags.dataDir, config.DefaultFileName), logger)
	bus := events.NewBus(logger)
	defer bus.Close()

	mgr, err := manager.New(store, bus, factory.New(flags.dataDir, logger), logger)
	if err != nil {
		return fmt.Errorf("failed to assemble resolver: %w", err)
	}
	defer mgr.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	apiSrv := api.New(flags.apiHost, flags.apiPort, mgr, bus, logger)
	logger.Info("api and doh starting", "addr", apiSrv.Addr())
	go func() {
		serveErr := apiSrv.ListenAndServe()
		if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) {
			return
		}
		logger.Error("api server error", "err", serveErr)
		cancel()
	}()

	if !flags.noServe {
		if err := mgr.Start(flags.port); err != nil {
			logger.Error("dns server failed to start", "err", err)
			// The API stays up so the operator can fix the config and
			// start again.
		}
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = apiSrv.Shutdown(shutdownCtx)
	shutdownCancel()
	logger.Info("shut down")
	return nil
}
