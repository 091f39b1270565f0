package dnswire

import (
	"encoding/binary"
	"fmt"

	"github.com/deckyfx/dnsgate/internal/helpers"
)

// RRHeader carries the fields common to every resource record. For OPT
// pseudo-records Class holds the advertised UDP payload size and TTL the
// extended flags word (RFC 6891); OPT has no real TTL.
type RRHeader struct {
	Name  string
	Class RecordClass
	TTL   uint32
}

// Record is the sum type over resource records. Concrete implementations
// exist per modeled type (IPRecord, NameRecord, MXRecord, SRVRecord,
// SOARecord, TXTRecord, OPTRecord); everything else is an OpaqueRecord.
type Record interface {
	Type() RecordType
	Header() RRHeader
	SetHeader(RRHeader)
	MarshalRData() ([]byte, error)
}

// ParseRecord parses one resource record at *off, advancing it past the
// record. RDATA for unknown types is kept verbatim so the record
// round-trips unchanged.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+10 > len(msg) {
		return nil, fmt.Errorf("%w: truncated record", ErrMalformedPacket)
	}
	rrType := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	rrClass := RecordClass(binary.BigEndian.Uint16(msg[*off+2 : *off+4]))
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10
	start := *off
	if start+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: truncated rdata", ErrMalformedPacket)
	}

	h := RRHeader{Name: name, Class: rrClass, TTL: ttl}

	var rr Record
	switch rrType {
	case TypeA, TypeAAAA:
		rr, err = parseIPRData(msg, off, rdlen)
	case TypeCNAME, TypeNS, TypePTR:
		rr, err = parseNameRData(msg, off, rdlen, rrType)
	case TypeMX:
		rr, err = parseMXRData(msg, off, rdlen)
	case TypeSRV:
		rr, err = parseSRVRData(msg, off, rdlen)
	case TypeSOA:
		rr, err = parseSOARData(msg, off, rdlen)
	case TypeTXT:
		rr, err = parseTXTRData(msg, off, rdlen)
	case TypeOPT:
		rr, err = parseOPTRData(msg, off, rdlen)
	default:
		rr, err = parseOpaqueRData(msg, off, rdlen, rrType)
	}
	if err != nil {
		return nil, err
	}
	if *off-start != rdlen {
		return nil, fmt.Errorf("%w: rdata length mismatch for %s", ErrMalformedPacket, rrType)
	}
	rr.SetHeader(h)
	return rr, nil
}

// MarshalRecord serializes a record to wire format. The OPT pseudo-record
// always carries the root name.
func MarshalRecord(rr Record) ([]byte, error) {
	h := rr.Header()

	nameWire := []byte{0}
	if rr.Type() != TypeOPT && h.Name != "" {
		b, err := EncodeName(h.Name)
		if err != nil {
			return nil, err
		}
		nameWire = b
	}

	rdata, err := rr.MarshalRData()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(rr.Type()))
	binary.BigEndian.PutUint16(fixed[2:4], uint16(h.Class))
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], helpers.ClampIntToUint16(len(rdata)))
	out = append(out, fixed...)
	return append(out, rdata...), nil
}
