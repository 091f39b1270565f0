// Package server implements the wire-facing listeners: the UDP DNS server
// and the RFC 8484 DoH handler. Both feed the resolver and never drop a
// request silently — every datagram and every well-framed HTTP request
// yields a DNS response.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/deckyfx/dnsgate/internal/dnswire"
	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/pool"
	"github.com/deckyfx/dnsgate/internal/resolver"
)

// Socket buffer sizes for burst handling.
const (
	socketRecvBufferSize = 4 * 1024 * 1024
	socketSendBufferSize = 4 * 1024 * 1024
)

// DefaultWorkers is the default number of worker goroutines draining the
// packet channel. Upstream DoH latency, not CPU, dominates per query.
const DefaultWorkers = 256

// bufferPool reduces allocations on the receive path.
var bufferPool = pool.New(func() *[]byte {
	buf := make([]byte, dnswire.MaxIncomingMessageSize)
	return &buf
})

// UDPServer reads DNS datagrams, resolves them, and answers the source.
//
// One receiver goroutine feeds a fixed worker pool through a buffered
// channel; the receiver never blocks on slow workers.
type UDPServer struct {
	Logger   *slog.Logger
	Resolver *resolver.Resolver
	Workers  int

	conn *net.UDPConn
	wg   sync.WaitGroup
}

type packet struct {
	bufPtr *[]byte
	n      int
	peer   *net.UDPAddr
}

// Run binds the socket and serves until the context is cancelled. It
// returns immediately on bind failure, otherwise blocks.
func (s *UDPServer) Run(ctx context.Context, addr string) error {
	conn, err := listenReusePort(addr)
	if err != nil {
		return err
	}
	return s.RunOnConn(ctx, conn)
}

// RunOnConn serves on an existing UDP connection. Useful for tests and
// callers that manage the socket.
func (s *UDPServer) RunOnConn(ctx context.Context, conn *net.UDPConn) error {
	if s.Workers <= 0 {
		s.Workers = DefaultWorkers
	}

	_ = conn.SetReadBuffer(socketRecvBufferSize)
	_ = conn.SetWriteBuffer(socketSendBufferSize)
	s.conn = conn

	packetCh := make(chan packet, s.Workers*2)

	s.wg.Go(func() {
		s.recvLoop(ctx, conn, packetCh)
	})
	for range s.Workers {
		s.wg.Go(func() {
			s.workerLoop(ctx, conn, packetCh)
		})
	}

	<-ctx.Done()
	return s.Stop(5 * time.Second)
}

// recvLoop reads packets and hands them to workers without blocking; if
// every worker is busy the datagram is answered SERVFAIL inline rather
// than dropped.
func (s *UDPServer) recvLoop(ctx context.Context, conn *net.UDPConn, out chan<- packet) {
	for {
		bufPtr := bufferPool.Get()
		buf := *bufPtr

		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			bufferPool.Put(bufPtr)
			// Shutdown or closed socket either way.
			return
		}

		select {
		case out <- packet{bufPtr, n, peer}:
		default:
			// Saturated: still answer, a dropped datagram is a client
			// timeout.
			resp := dnswire.CraftSERVFAIL(buf[:n])
			if len(resp) > 0 {
				_, _ = conn.WriteToUDP(resp, peer)
			}
			bufferPool.Put(bufPtr)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *UDPServer) workerLoop(ctx context.Context, conn *net.UDPConn, in <-chan packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-in:
			if !ok {
				return
			}
			s.handlePacket(ctx, conn, pkt)
		}
	}
}

// handlePacket resolves one datagram and always writes a reply: resolver
// failures already surface as SERVFAIL bytes, and an empty result is
// crafted into one here.
func (s *UDPServer) handlePacket(ctx context.Context, conn *net.UDPConn, p packet) {
	defer bufferPool.Put(p.bufPtr)

	payload := (*p.bufPtr)[:p.n]
	client := driver.ClientInfo{
		Address:   p.peer.IP.String(),
		Port:      p.peer.Port,
		Transport: "udp",
	}

	res := s.Resolver.Resolve(ctx, payload, client)
	resp := res.ResponseBytes
	if len(resp) == 0 {
		resp = dnswire.CraftSERVFAIL(payload)
	}
	if len(resp) == 0 {
		return // not even a transaction id to echo
	}
	_, _ = conn.WriteToUDP(resp, p.peer)
}

// Stop closes the socket and waits for the goroutines to drain.
func (s *UDPServer) Stop(timeout time.Duration) error {
	if s.conn != nil {
		_ = s.conn.Close()
	}

	if timeout <= 0 {
		s.wg.Wait()
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("udp server: timeout waiting for goroutines to exit")
	}
}

// listenReusePort creates a UDP socket with SO_REUSEPORT so a restarting
// process can rebind without waiting out lingering sockets.
func listenReusePort(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", udpAddr.String())
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
