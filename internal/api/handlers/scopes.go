package handlers

import (
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/events"
)

// scopeFromPath maps the request path's last segment to a driver kind.
func scopeFromPath(c *gin.Context) (driver.Kind, bool) {
	switch path.Base(c.Request.URL.Path) {
	case "log", "logs":
		return driver.KindLogs, true
	case "cache":
		return driver.KindCache, true
	case "blacklist":
		return driver.KindBlacklist, true
	case "whitelist":
		return driver.KindWhitelist, true
	default:
		return "", false
	}
}

// ScopeControl is the method-dispatch POST endpoint shared by the four
// scopes: SET swaps the driver, the rest manage content.
func (h *Handler) ScopeControl(c *gin.Context) {
	kind, ok := scopeFromPath(c)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown scope"})
		return
	}

	var req setDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if strings.ToUpper(req.Method) == "SET" {
		h.setDriver(c, kind, req)
		return
	}

	switch kind {
	case driver.KindLogs:
		h.logControl(c, req)
	case driver.KindCache:
		h.cacheControl(c, req)
	default:
		h.listControl(c, kind, req)
	}
}

func (h *Handler) logControl(c *gin.Context, req setDriverRequest) {
	logs := h.mgr.Resolver().Drivers().Logs
	switch strings.ToUpper(req.Method) {
	case "CLEAR":
		logs.Clear()
		h.bus.Publish(events.ChannelLogRefresh, gin.H{"action": "clear"})
	case "CLEANUP":
		logs.Cleanup()
		h.bus.Publish(events.ChannelLogRefresh, gin.H{"action": "cleanup"})
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown method " + req.Method})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *Handler) cacheControl(c *gin.Context, req setDriverRequest) {
	cache := h.mgr.Resolver().Drivers().Cache
	switch strings.ToUpper(req.Method) {
	case "CLEAR":
		cache.Clear()
	case "DELETE":
		if req.Key == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing key"})
			return
		}
		if !cache.Delete(req.Key) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "key not found"})
			return
		}
	case "CLEANUP":
		cache.Cleanup()
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown method " + req.Method})
		return
	}
	h.bus.Publish(events.ChannelCacheRefresh, gin.H{"action": strings.ToLower(req.Method)})
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *Handler) listControl(c *gin.Context, kind driver.Kind, req setDriverRequest) {
	d := h.mgr.Resolver().Drivers()
	list := d.Blacklist
	channel := events.ChannelBlacklistRefresh
	if kind == driver.KindWhitelist {
		list = d.Whitelist
		channel = events.ChannelWhitelistRefresh
	}

	switch strings.ToUpper(req.Method) {
	case "ADD":
		if err := list.Add(req.Domain, req.Reason, req.Category); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	case "REMOVE":
		if !list.Remove(req.Domain) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "domain not found"})
			return
		}
	case "IMPORT":
		inserted := list.Import(req.Entries)
		h.bus.Publish(channel, gin.H{"action": "import", "inserted": inserted})
		c.JSON(http.StatusOK, gin.H{"status": "ok", "inserted": inserted})
		return
	case "CLEAR":
		list.Clear()
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown method " + req.Method})
		return
	}
	h.bus.Publish(channel, gin.H{"action": strings.ToLower(req.Method), "domain": req.Domain})
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// GetLogs surfaces the log driver's filtered query.
func (h *Handler) GetLogs(c *gin.Context) {
	f := driver.LogFilter{
		Type:      driver.EntryType(c.Query("type")),
		Level:     driver.Level(c.Query("level")),
		Domain:    c.Query("domain"),
		Provider:  c.Query("provider"),
		ClientIP:  c.Query("clientIp"),
		RequestID: c.Query("requestId"),
	}
	if v := c.Query("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := c.Query("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}
	if v := c.Query("startTime"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.StartTime = t
		}
	}
	if v := c.Query("endTime"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.EndTime = t
		}
	}
	for q, dst := range map[string]**bool{
		"success":     &f.Success,
		"cached":      &f.Cached,
		"blocked":     &f.Blocked,
		"whitelisted": &f.Whitelisted,
	} {
		if v := c.Query(q); v != "" {
			b := v == "true" || v == "1"
			*dst = &b
		}
	}

	logs := h.mgr.Resolver().Drivers().Logs
	entries := logs.Logs(f)
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
		"stats":   logs.Stats(),
	})
}

// GetLogPair returns the request/response pair for a request id.
func (h *Handler) GetLogPair(c *gin.Context) {
	req, resp := h.mgr.Resolver().Drivers().Logs.Pair(c.Param("id"))
	if req == nil && resp == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "request id not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req, "response": resp})
}

// GetLogOrphans returns unpaired request and response entries.
func (h *Handler) GetLogOrphans(c *gin.Context) {
	orphans := h.mgr.Resolver().Drivers().Logs.Orphans()
	c.JSON(http.StatusOK, gin.H{"entries": orphans, "count": len(orphans)})
}

// GetCache returns cache stats and keys.
func (h *Handler) GetCache(c *gin.Context) {
	cache := h.mgr.Resolver().Drivers().Cache
	keys := cache.Keys()
	sort.Strings(keys)
	c.JSON(http.StatusOK, gin.H{"stats": cache.Stats(), "keys": keys})
}

// GetBlacklist returns the blacklist content and stats.
func (h *Handler) GetBlacklist(c *gin.Context) {
	h.getList(c, h.mgr.Resolver().Drivers().Blacklist)
}

// GetWhitelist returns the whitelist content and stats.
func (h *Handler) GetWhitelist(c *gin.Context) {
	h.getList(c, h.mgr.Resolver().Drivers().Whitelist)
}

func (h *Handler) getList(c *gin.Context, list driver.ListDriver) {
	entries := list.List(c.Query("category"))
	sort.Slice(entries, func(i, j int) bool { return entries[i].Domain < entries[j].Domain })
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
		"stats":   list.Stats(),
	})
}
