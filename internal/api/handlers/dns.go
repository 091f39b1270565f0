package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/deckyfx/dnsgate/internal/config"
	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/driver/factory"
)

// DNSStatus returns the manager status plus provider counters.
func (h *Handler) DNSStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    h.mgr.Status(),
		"providers": h.mgr.TrackerSnapshot(),
	})
}

// controlRequest is the method-dispatch body of POST /api/dns.
type controlRequest struct {
	Method   string `json:"method" binding:"required"`
	Port     int    `json:"port,omitempty"`
	ConfigID string `json:"configId,omitempty"`
}

// DNSControl starts, stops, toggles or reconfigures the server.
func (h *Handler) DNSControl(c *gin.Context) {
	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var err error
	switch strings.ToUpper(req.Method) {
	case "START":
		err = h.mgr.Start(req.Port)
	case "STOP":
		err = h.mgr.Stop()
	case "TOGGLE":
		err = h.mgr.Toggle()
	case "RELOAD":
		err = h.mgr.ReloadConfig()
	case "SET_NEXTDNS":
		err = h.mgr.SetNextDNSConfigID(req.ConfigID)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown method " + req.Method})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": h.mgr.Status()})
}

// GetDrivers lists the available driver types per kind and the current
// selection.
func (h *Handler) GetDrivers(c *gin.Context) {
	available := map[string][]string{}
	for kind, types := range factory.Available() {
		available[string(kind)] = types
	}

	d := h.mgr.Resolver().Drivers()
	current := map[string]string{
		string(driver.KindLogs):      d.Logs.Name(),
		string(driver.KindCache):     d.Cache.Name(),
		string(driver.KindBlacklist): d.Blacklist.Name(),
		string(driver.KindWhitelist): d.Whitelist.Name(),
	}

	c.JSON(http.StatusOK, gin.H{"available": available, "current": current})
}

// setDriverRequest is the SET body of POST /api/dns/{scope}.
type setDriverRequest struct {
	Method  string         `json:"method" binding:"required"`
	Driver  string         `json:"driver,omitempty"`
	Options driver.Options `json:"options,omitempty"`

	// Content management fields, used by the non-SET methods.
	Domain   string             `json:"domain,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Category string             `json:"category,omitempty"`
	Key      string             `json:"key,omitempty"`
	Entries  []driver.ListEntry `json:"entries,omitempty"`
}

// setDriver swaps one driver slot via the manager.
func (h *Handler) setDriver(c *gin.Context, kind driver.Kind, req setDriverRequest) {
	if req.Driver == "" || !factory.Valid(kind, req.Driver) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown driver type " + req.Driver})
		return
	}
	err := h.mgr.UpdateDriverConfiguration(map[driver.Kind]config.DriverConfig{
		kind: {Type: req.Driver, Options: req.Options},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}
