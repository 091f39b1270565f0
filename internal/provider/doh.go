package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// dnsMessageType is the RFC 8484 media type for DNS wire format over HTTP.
const dnsMessageType = "application/dns-message"

// maxResponseSize caps how much of an upstream body is read. DNS messages
// never legitimately exceed 64 KiB.
const maxResponseSize = 64 * 1024

// Built-in DoH endpoints.
const (
	CloudflareEndpoint = "https://cloudflare-dns.com/dns-query"
	GoogleEndpoint     = "https://dns.google/dns-query"
	OpenDNSEndpoint    = "https://doh.opendns.com/dns-query"
	nextDNSBase        = "dns.nextdns.io"
)

// DoH resolves queries against one RFC 8484 endpoint using POST with the
// raw query as body.
type DoH struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewDoH creates a DoH provider for an arbitrary endpoint.
func NewDoH(name, endpoint string) *DoH {
	return &DoH{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
}

// NewNextDNS creates the NextDNS provider. With a config id the endpoint is
// https://<id>.dns.nextdns.io/dns-query; without one the bare resolver is
// used.
func NewNextDNS(configID string) *DoH {
	endpoint := fmt.Sprintf("https://%s/dns-query", nextDNSBase)
	if configID != "" {
		endpoint = fmt.Sprintf("https://%s.%s/dns-query", configID, nextDNSBase)
	}
	return NewDoH("nextdns", endpoint)
}

// NewCloudflare creates the Cloudflare provider.
func NewCloudflare() *DoH { return NewDoH("cloudflare", CloudflareEndpoint) }

// NewGoogle creates the Google Public DNS provider.
func NewGoogle() *DoH { return NewDoH("google", GoogleEndpoint) }

// NewOpenDNS creates the OpenDNS provider.
func NewOpenDNS() *DoH { return NewDoH("opendns", OpenDNSEndpoint) }

func (d *DoH) Name() string { return d.name }

// Endpoint returns the resolver URL, for status reporting.
func (d *DoH) Endpoint() string { return d.endpoint }

// Resolve POSTs the raw query per RFC 8484 and returns the raw response.
func (d *DoH) Resolve(ctx context.Context, query []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, d.name, err)
	}
	req.Header.Set("Content-Type", dnsMessageType)
	req.Header.Set("Accept", dnsMessageType)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, d.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: unexpected status %d", ErrUpstream, d.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %v", ErrUpstream, d.name, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s: empty response body", ErrUpstream, d.name)
	}
	return body, nil
}
