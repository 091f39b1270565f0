package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deckyfx/dnsgate/internal/dnswire"
	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/helpers"
)

// testRequest is the body of POST /api/dns/test.
type testRequest struct {
	Method string `json:"method" binding:"required"` // UDP | DOH
	Domain string `json:"domain" binding:"required"`
	Port   int    `json:"port,omitempty"`
	Type   string `json:"type,omitempty"` // record type, default A
}

// TestResolve performs a test resolution: over a real UDP socket against
// the running listener, or through the pipeline directly for DoH.
func (h *Handler) TestResolve(c *gin.Context) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	qtype := dnswire.TypeA
	if strings.EqualFold(req.Type, "AAAA") {
		qtype = dnswire.TypeAAAA
	}
	query, err := buildTestQuery(req.Domain, qtype)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	start := time.Now()
	var respBytes []byte
	switch strings.ToUpper(req.Method) {
	case "UDP":
		respBytes, err = h.testOverUDP(query, req.Port)
	case "DOH":
		res := h.mgr.Resolver().Resolve(c.Request.Context(), query, driver.ClientInfo{
			Address:   c.ClientIP(),
			Transport: "doh",
		})
		respBytes = res.ResponseBytes
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown method " + req.Method})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}

	parsed, err := dnswire.Decode(respBytes)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "unparseable response: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"domain":         req.Domain,
		"rcode":          int(parsed.RCode()),
		"answers":        len(parsed.Answers),
		"ips":            dnswire.ExtractIPs(parsed),
		"responseTimeMs": float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

func (h *Handler) testOverUDP(query []byte, port int) ([]byte, error) {
	if port <= 0 {
		if st := h.mgr.Status(); st.Server != nil {
			port = st.Server.Port
		} else {
			port = 53
		}
	}

	conn, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write(query); err != nil {
		return nil, err
	}
	buf := make([]byte, dnswire.MaxIncomingMessageSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n:n], nil
}

func buildTestQuery(domain string, qtype dnswire.RecordType) ([]byte, error) {
	p := dnswire.Packet{
		Header: dnswire.Header{
			ID:    helpers.ClampIntToUint16(int(time.Now().UnixNano() & 0xFFFF)),
			Flags: dnswire.RDFlag,
		},
		Questions: []dnswire.Question{{
			Name:  dnswire.NormalizeName(domain),
			Type:  qtype,
			Class: dnswire.ClassIN,
		}},
	}
	return p.Marshal()
}
