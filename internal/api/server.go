// Package api provides the HTTP surface of the proxy: the RFC 8484 DoH
// endpoint, the control API for driver and lifecycle management, and the
// SSE event stream.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deckyfx/dnsgate/internal/api/handlers"
	"github.com/deckyfx/dnsgate/internal/api/middleware"
	"github.com/deckyfx/dnsgate/internal/events"
	"github.com/deckyfx/dnsgate/internal/manager"
	"github.com/deckyfx/dnsgate/internal/server"
)

// Server is the HTTP server hosting DoH, the control API and SSE.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New assembles the HTTP server on the given host and port.
func New(host string, port int, mgr *manager.Manager, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(mgr, bus, logger)
	RegisterRoutes(engine, h, mgr)

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// SSE connections stay open indefinitely; no write timeout.
		IdleTimeout: 60 * time.Second,
	}

	return &Server{logger: logger, engine: engine, httpServer: httpServer}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Engine exposes the router, for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// ListenAndServe blocks serving HTTP.
func (s *Server) ListenAndServe() error { return s.httpServer.ListenAndServe() }

// Shutdown drains connections until the context expires.
func (s *Server) Shutdown(ctx context.Context) error { return s.httpServer.Shutdown(ctx) }

// RegisterRoutes wires every endpoint onto the engine.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, mgr *manager.Manager) {
	// RFC 8484 endpoint at the conventional path and at the root.
	doh := server.DoHHandler(mgr.Resolver())
	r.GET("/dns-query", doh)
	r.POST("/dns-query", doh)
	r.GET("/", doh)
	r.POST("/", doh)

	api := r.Group("/api")

	api.GET("/dns", h.DNSStatus)
	api.POST("/dns", h.DNSControl)
	api.GET("/dns/driver", h.GetDrivers)
	api.POST("/dns/test", h.TestResolve)

	// Per-scope content and driver management.
	api.GET("/dns/log", h.GetLogs)
	api.POST("/dns/log", h.ScopeControl)
	api.GET("/dns/log/orphans", h.GetLogOrphans)
	api.GET("/dns/log/pair/:id", h.GetLogPair)

	api.GET("/dns/cache", h.GetCache)
	api.POST("/dns/cache", h.ScopeControl)

	api.GET("/dns/blacklist", h.GetBlacklist)
	api.POST("/dns/blacklist", h.ScopeControl)

	api.GET("/dns/whitelist", h.GetWhitelist)
	api.POST("/dns/whitelist", h.ScopeControl)

	// Aliases matching the driver scope names.
	api.POST("/dns/logs", h.ScopeControl)

	api.GET("/sse/stream", h.SSEStream)
	api.GET("/system/stats", h.SystemStats)
}
