package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckyfx/dnsgate/internal/dnswire"
	"github.com/deckyfx/dnsgate/internal/driver/cachedriver"
	"github.com/deckyfx/dnsgate/internal/driver/listdriver"
	"github.com/deckyfx/dnsgate/internal/driver/logdriver"
	"github.com/deckyfx/dnsgate/internal/provider"
	"github.com/deckyfx/dnsgate/internal/resolver"
)

type stubProvider struct {
	name  string
	fail  bool
	calls atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Resolve(_ context.Context, query []byte) ([]byte, error) {
	s.calls.Add(1)
	if s.fail {
		return nil, errors.New("stub upstream down")
	}
	req, err := dnswire.Decode(query)
	if err != nil {
		return nil, err
	}
	resp := dnswire.Packet{
		Header:    dnswire.Header{ID: req.Header.ID, Flags: dnswire.QRFlag | dnswire.RAFlag},
		Questions: req.Questions,
		Answers: []dnswire.Record{
			&dnswire.IPRecord{
				H:    dnswire.RRHeader{Name: req.Questions[0].Name, Class: dnswire.ClassIN, TTL: 60},
				Addr: net.ParseIP("93.184.216.34"),
			},
		},
	}
	return resp.Marshal()
}

func newTestResolver(t *testing.T, stub *stubProvider) *resolver.Resolver {
	t.Helper()
	cache := cachedriver.NewMemory(100, time.Minute)
	t.Cleanup(func() { cache.Close() })
	return resolver.New(resolver.Config{
		Providers: []provider.Provider{stub},
		Drivers: resolver.Drivers{
			Logs:      logdriver.NewMemory(100),
			Cache:     cache,
			Blacklist: listdriver.NewMemory(true),
			Whitelist: listdriver.NewMemory(true),
		},
	})
}

func mkQuery(t *testing.T, name string) []byte {
	t.Helper()
	p := dnswire.Packet{
		Header:    dnswire.Header{ID: 0x2222, Flags: dnswire.RDFlag},
		Questions: []dnswire.Question{{Name: name, Type: dnswire.TypeA, Class: dnswire.ClassIN}},
	}
	b, err := p.Marshal()
	require.NoError(t, err)
	return b
}

func newDoHEngine(t *testing.T, stub *stubProvider) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h := DoHHandler(newTestResolver(t, stub))
	engine.GET("/dns-query", h)
	engine.POST("/dns-query", h)
	return engine
}

func TestDoHPost(t *testing.T) {
	engine := newDoHEngine(t, &stubProvider{name: "stub"})

	req := httptest.NewRequest(http.MethodPost, "/dns-query", bytes.NewReader(mkQuery(t, "example.com")))
	req.Header.Set("Content-Type", "application/dns-message")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/dns-message", w.Header().Get("Content-Type"))

	p, err := dnswire.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"93.184.216.34"}, dnswire.ExtractIPs(p))
}

func TestDoHGet(t *testing.T) {
	engine := newDoHEngine(t, &stubProvider{name: "stub"})

	encoded := base64.RawURLEncoding.EncodeToString(mkQuery(t, "example.com"))
	req := httptest.NewRequest(http.MethodGet, "/dns-query?dns="+encoded, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	p, err := dnswire.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2222), p.Header.ID)
	assert.Len(t, p.Answers, 1)
}

func TestDoHGetMissingParam(t *testing.T) {
	engine := newDoHEngine(t, &stubProvider{name: "stub"})

	req := httptest.NewRequest(http.MethodGet, "/dns-query", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDoHGetGarbageParam(t *testing.T) {
	engine := newDoHEngine(t, &stubProvider{name: "stub"})

	req := httptest.NewRequest(http.MethodGet, "/dns-query?dns=%%%", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDoHPostWrongContentType(t *testing.T) {
	engine := newDoHEngine(t, &stubProvider{name: "stub"})

	req := httptest.NewRequest(http.MethodPost, "/dns-query", bytes.NewReader(mkQuery(t, "example.com")))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDoHAllProvidersFail(t *testing.T) {
	engine := newDoHEngine(t, &stubProvider{name: "stub", fail: true})

	req := httptest.NewRequest(http.MethodPost, "/dns-query", bytes.NewReader(mkQuery(t, "example.com")))
	req.Header.Set("Content-Type", "application/dns-message")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	p, err := dnswire.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, dnswire.RCodeServFail, p.RCode())
}

func TestDoHMalformedDNSBody(t *testing.T) {
	// Valid framing, garbage DNS payload: still HTTP 200 with SERVFAIL.
	engine := newDoHEngine(t, &stubProvider{name: "stub"})

	req := httptest.NewRequest(http.MethodPost, "/dns-query", bytes.NewReader([]byte{0xAB, 0xCD, 0x01}))
	req.Header.Set("Content-Type", "application/dns-message")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	p, err := dnswire.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, dnswire.RCodeServFail, p.RCode())
}

func TestUDPServerRoundTrip(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)

	srv := &UDPServer{Resolver: newTestResolver(t, &stubProvider{name: "stub"}), Workers: 4}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.RunOnConn(ctx, conn)
	}()

	client, err := net.DialUDP("udp", nil, conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()
	_ = client.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = client.Write(mkQuery(t, "example.com"))
	require.NoError(t, err)

	buf := make([]byte, dnswire.MaxIncomingMessageSize)
	n, err := client.Read(buf)
	require.NoError(t, err)

	p, err := dnswire.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2222), p.Header.ID)
	assert.Equal(t, []string{"93.184.216.34"}, dnswire.ExtractIPs(p))

	// Garbage datagram still gets an answer (SERVFAIL), never silence.
	_, err = client.Write([]byte{0xFF, 0xEE, 0x00, 0x01})
	require.NoError(t, err)
	n, err = client.Read(buf)
	require.NoError(t, err)
	p, err = dnswire.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, dnswire.RCodeServFail, p.RCode())

	cancel()
	select {
	case <-done:
	case <-time.After(7 * time.Second):
		t.Fatal("udp server did not stop")
	}
}
