package handlers

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// SSEStream opens a server-sent-event stream. Clients pick channels with
// ?channels=dns/log/,dns/status (comma-separated prefixes; empty means
// everything). Each event is one `data: <json>` line carrying
// {type, data, timestamp}.
func (h *Handler) SSEStream(c *gin.Context) {
	var prefixes []string
	if raw := c.Query("channels"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
	}

	sub := h.bus.Subscribe(prefixes)
	defer h.bus.Unsubscribe(sub.ID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return false // the bus dropped us
			}
			b, err := json.Marshal(msg)
			if err != nil {
				return true
			}
			// A write error surfaces on the next flush; gin stops the
			// stream when the client context is done.
			_ = sse.Encode(w, sse.Event{Data: string(b)})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
