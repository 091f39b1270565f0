package dnswire

import (
	"encoding/binary"
	"fmt"
)

// SRVRecord represents a service locator record (RFC 2782).
type SRVRecord struct {
	H        RRHeader
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (r *SRVRecord) Type() RecordType     { return TypeSRV }
func (r *SRVRecord) Header() RRHeader     { return r.H }
func (r *SRVRecord) SetHeader(h RRHeader) { r.H = h }

func (r *SRVRecord) MarshalRData() ([]byte, error) {
	target, err := EncodeName(r.Target)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 6+len(target))
	binary.BigEndian.PutUint16(out[0:2], r.Priority)
	binary.BigEndian.PutUint16(out[2:4], r.Weight)
	binary.BigEndian.PutUint16(out[4:6], r.Port)
	copy(out[6:], target)
	return out, nil
}

func parseSRVRData(msg []byte, off *int, rdlen int) (*SRVRecord, error) {
	start := *off
	if *off+6 > len(msg) {
		return nil, fmt.Errorf("%w: truncated SRV fields", ErrMalformedPacket)
	}
	r := &SRVRecord{
		Priority: binary.BigEndian.Uint16(msg[*off : *off+2]),
		Weight:   binary.BigEndian.Uint16(msg[*off+2 : *off+4]),
		Port:     binary.BigEndian.Uint16(msg[*off+4 : *off+6]),
	}
	*off += 6
	target, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	r.Target = target
	if *off-start != rdlen {
		return nil, fmt.Errorf("%w: bad rdata length for SRV", ErrMalformedPacket)
	}
	return r, nil
}
