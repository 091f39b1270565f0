package dnswire

import (
	"fmt"
	"net"
)

// IPRecord represents an A or AAAA record. The type is derived from the
// address family.
type IPRecord struct {
	H    RRHeader
	Addr net.IP
}

// Type returns TypeA for IPv4 addresses, TypeAAAA otherwise.
func (r *IPRecord) Type() RecordType {
	if r.Addr.To4() != nil {
		return TypeA
	}
	return TypeAAAA
}

func (r *IPRecord) Header() RRHeader     { return r.H }
func (r *IPRecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData emits 4 bytes for A, 16 for AAAA.
func (r *IPRecord) MarshalRData() ([]byte, error) {
	if ip4 := r.Addr.To4(); ip4 != nil {
		return []byte(ip4), nil
	}
	if ip6 := r.Addr.To16(); ip6 != nil {
		return []byte(ip6), nil
	}
	return nil, fmt.Errorf("%w: invalid IP address", ErrMalformedPacket)
}

func parseIPRData(msg []byte, off *int, rdlen int) (*IPRecord, error) {
	if rdlen != 4 && rdlen != 16 {
		return nil, fmt.Errorf("%w: A/AAAA rdata must be 4 or 16 bytes, got %d", ErrMalformedPacket, rdlen)
	}
	b := make([]byte, rdlen)
	copy(b, msg[*off:*off+rdlen])
	*off += rdlen
	return &IPRecord{Addr: net.IP(b)}, nil
}
