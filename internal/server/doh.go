package server

import (
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/resolver"
)

// dnsMessageType is the RFC 8484 media type.
const dnsMessageType = "application/dns-message"

// maxDoHBodySize bounds a POSTed query body.
const maxDoHBodySize = 8 * 1024

// DoHHandler serves RFC 8484 on a gin route, both methods:
//
//	GET  ?dns=<base64url of the wire query>
//	POST body = raw wire query, Content-Type: application/dns-message
//
// Framing errors get HTTP 400. A resolvable query always gets a DNS
// message back; total upstream failure maps to 502 with the SERVFAIL
// message as body, everything else to 200.
func DoHHandler(r *resolver.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		query, ok := extractDoHQuery(c)
		if !ok {
			return // extractDoHQuery already wrote the 400
		}

		host, port := clientAddr(c)
		res := r.Resolve(c.Request.Context(), query, driver.ClientInfo{
			Address:   host,
			Port:      port,
			Transport: "doh",
		})

		if len(res.ResponseBytes) == 0 {
			c.String(http.StatusInternalServerError, "resolution produced no response")
			return
		}

		status := http.StatusOK
		if !res.Success && res.Error == resolver.ErrAllProvidersFailed.Error() {
			status = http.StatusBadGateway
		}
		c.Data(status, dnsMessageType, res.ResponseBytes)
	}
}

// extractDoHQuery pulls the wire query out of the request, answering 400 on
// any framing problem.
func extractDoHQuery(c *gin.Context) ([]byte, bool) {
	switch c.Request.Method {
	case http.MethodGet:
		encoded := c.Query("dns")
		if encoded == "" {
			c.String(http.StatusBadRequest, "missing dns query parameter")
			return nil, false
		}
		query, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil || len(query) == 0 {
			c.String(http.StatusBadRequest, "invalid dns query parameter")
			return nil, false
		}
		return query, true

	case http.MethodPost:
		if ct := c.ContentType(); ct != dnsMessageType {
			c.String(http.StatusBadRequest, "unsupported content type")
			return nil, false
		}
		query, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDoHBodySize))
		if err != nil || len(query) == 0 {
			c.String(http.StatusBadRequest, "empty request body")
			return nil, false
		}
		return query, true

	default:
		c.String(http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
}

func clientAddr(c *gin.Context) (string, int) {
	host, portStr, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.ClientIP(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}
