// Package handlers implements the control API endpoints: lifecycle,
// driver selection, store content management, test resolution, SSE.
package handlers

import (
	"log/slog"
	"time"

	"github.com/deckyfx/dnsgate/internal/events"
	"github.com/deckyfx/dnsgate/internal/manager"
)

// Handler carries the dependencies of every endpoint.
type Handler struct {
	mgr       *manager.Manager
	bus       *events.Bus
	logger    *slog.Logger
	startTime time.Time
}

// New creates the handler set.
func New(mgr *manager.Manager, bus *events.Bus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		mgr:       mgr,
		bus:       bus,
		logger:    logger,
		startTime: time.Now(),
	}
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse acknowledges a state-changing call.
type StatusResponse struct {
	Status string `json:"status"`
}
