// dnsquery sends one DNS query to a running proxy (or any resolver) over
// UDP or DoH and prints the decoded answer. Useful for smoke-testing an
// instance without reaching for dig.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/deckyfx/dnsgate/internal/dnswire"
	"github.com/deckyfx/dnsgate/internal/helpers"
)

func main() {
	var (
		server  = flag.String("server", "127.0.0.1:53", "DNS server HOST:PORT (UDP mode)")
		dohURL  = flag.String("doh", "", "DoH endpoint URL; overrides -server when set")
		name    = flag.String("name", "example.com", "Query name")
		qtype   = flag.Int("qtype", 1, "Query type (numeric, A=1)")
		timeout = flag.Duration("timeout", 2*time.Second, "Timeout")
		quiet   = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
	)
	flag.Parse()

	query, err := buildQuery(*name, uint16(*qtype))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
		os.Exit(1)
	}

	var resp []byte
	if *dohURL != "" {
		resp, err = queryDoH(*dohURL, query, *timeout)
	} else {
		resp, err = queryUDP(*server, query, *timeout)
	}
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
		}
		os.Exit(1)
	}
	if *quiet {
		return
	}

	p, err := dnswire.Decode(resp)
	if err != nil {
		fmt.Printf("received %d bytes (unparseable)\n", len(resp))
		return
	}

	fmt.Printf("id=%d rcode=%d answers=%d authorities=%d additionals=%d\n",
		p.Header.ID,
		p.RCode(),
		len(p.Answers),
		len(p.Authorities),
		len(p.Additionals),
	)

	rows := make([]string, 0, len(p.Answers))
	for _, rr := range p.Answers {
		rows = append(rows, formatRR(rr))
	}
	sort.Strings(rows)
	for _, s := range rows {
		fmt.Println(s)
	}
}

func buildQuery(name string, qtype uint16) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name required")
	}
	p := dnswire.Packet{
		Header: dnswire.Header{
			ID:    helpers.ClampIntToUint16(int(time.Now().UnixNano()&0x7FFF) + 1),
			Flags: dnswire.RDFlag,
		},
		Questions: []dnswire.Question{{
			Name:  dnswire.NormalizeName(name),
			Type:  dnswire.RecordType(qtype),
			Class: dnswire.ClassIN,
		}},
	}
	return p.Marshal()
}

func queryUDP(server string, query []byte, timeout time.Duration) ([]byte, error) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, err
	}
	c, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write(query); err != nil {
		return nil, err
	}
	buf := make([]byte, dnswire.MaxIncomingMessageSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func queryDoH(url string, query []byte, timeout time.Duration) ([]byte, error) {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(query))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadGateway {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64*1024))
}

func formatRR(rr dnswire.Record) string {
	h := rr.Header()
	name := h.Name
	if name == "" {
		name = "."
	}
	switch r := rr.(type) {
	case *dnswire.IPRecord:
		return fmt.Sprintf("%s %d IN %s %s", name, h.TTL, rr.Type(), r.Addr)
	case *dnswire.NameRecord:
		return fmt.Sprintf("%s %d IN %s %s", name, h.TTL, rr.Type(), r.Target)
	case *dnswire.MXRecord:
		return fmt.Sprintf("%s %d IN MX %d %s", name, h.TTL, r.Preference, r.Exchange)
	case *dnswire.TXTRecord:
		return fmt.Sprintf("%s %d IN TXT %q", name, h.TTL, strings.Join(r.Strings, " "))
	default:
		return fmt.Sprintf("%s %d IN %s (unparsed)", name, h.TTL, rr.Type())
	}
}
