package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStats reports process-level resource usage.
func (h *Handler) SystemStats(c *gin.Context) {
	stats := gin.H{
		"pid":           os.Getpid(),
		"goroutines":    runtime.NumGoroutine(),
		"uptimeSeconds": int64(time.Since(h.startTime).Seconds()),
		"subscribers":   h.bus.SubscriberCount(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			stats["cpuPercent"] = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			stats["rssBytes"] = mem.RSS
		}
	}

	c.JSON(http.StatusOK, stats)
}
