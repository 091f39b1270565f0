package provider

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/deckyfx/dnsgate/internal/dnswire"
	"github.com/deckyfx/dnsgate/internal/helpers"
)

const resolvConfPath = "/etc/resolv.conf"

// System forwards queries to the host's configured recursive resolver over
// plain UDP port 53, retrying over TCP when the response is truncated.
type System struct {
	server  string // ip of the host resolver
	timeout time.Duration
}

// NewSystem creates the System provider, reading the first nameserver from
// /etc/resolv.conf and falling back to the loopback resolver.
func NewSystem() *System {
	return &System{server: firstNameserver(resolvConfPath), timeout: DefaultTimeout}
}

func (s *System) Name() string { return "system" }

// firstNameserver scans a resolv.conf for the first nameserver line.
func firstNameserver(path string) string {
	const fallback = "127.0.0.1"

	f, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "nameserver" {
			if ip := net.ParseIP(fields[1]); ip != nil {
				return fields[1]
			}
		}
	}
	return fallback
}

// Resolve sends the query over UDP with a bounded deadline; a truncated
// answer is retried over TCP with length-prefix framing.
func (s *System) Resolve(ctx context.Context, query []byte) ([]byte, error) {
	resp, err := s.queryUDP(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: system: %v", ErrUpstream, err)
	}
	if dnswire.IsTruncated(resp) {
		tcpResp, err := s.queryTCP(ctx, query)
		if err != nil {
			// The truncated UDP answer is still a valid DNS message.
			return resp, nil
		}
		return tcpResp, nil
	}
	return resp, nil
}

func (s *System) queryUDP(ctx context.Context, query []byte) ([]byte, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.server, "53"))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

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

// queryTCP uses the RFC 1035 section 4.2.2 framing: a 2-byte big-endian
// length prefix before the message.
func (s *System) queryTCP(ctx context.Context, query []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.server, "53"))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], helpers.ClampIntToUint16(len(query)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return nil, err
	}
	if _, err := conn.Write(query); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	respLen := int(binary.BigEndian.Uint16(prefix[:]))
	if respLen <= 0 {
		return nil, fmt.Errorf("invalid TCP response length: %d", respLen)
	}

	resp := make([]byte, respLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
