package dnswire

import (
	"encoding/binary"
	"fmt"
)

// MXRecord represents a mail exchange record (RFC 1035 Section 3.3.9).
type MXRecord struct {
	H          RRHeader
	Preference uint16
	Exchange   string
}

func (r *MXRecord) Type() RecordType     { return TypeMX }
func (r *MXRecord) Header() RRHeader     { return r.H }
func (r *MXRecord) SetHeader(h RRHeader) { r.H = h }

func (r *MXRecord) MarshalRData() ([]byte, error) {
	ex, err := EncodeName(r.Exchange)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 2+len(ex))
	binary.BigEndian.PutUint16(out[0:2], r.Preference)
	copy(out[2:], ex)
	return out, nil
}

func parseMXRData(msg []byte, off *int, rdlen int) (*MXRecord, error) {
	start := *off
	if *off+2 > len(msg) {
		return nil, fmt.Errorf("%w: truncated MX preference", ErrMalformedPacket)
	}
	pref := binary.BigEndian.Uint16(msg[*off : *off+2])
	*off += 2
	ex, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off-start != rdlen {
		return nil, fmt.Errorf("%w: bad rdata length for MX", ErrMalformedPacket)
	}
	return &MXRecord{Preference: pref, Exchange: ex}, nil
}
