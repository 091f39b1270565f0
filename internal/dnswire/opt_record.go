package dnswire

// OPTRecord represents the EDNS pseudo-record (RFC 6891). It abuses the
// record header: Class carries the advertised UDP payload size and TTL the
// extended RCODE and flags. It has no real TTL and is excluded from
// minimum-TTL computation.
type OPTRecord struct {
	H       RRHeader
	Options []byte // raw option list, round-tripped verbatim
}

func (r *OPTRecord) Type() RecordType     { return TypeOPT }
func (r *OPTRecord) Header() RRHeader     { return r.H }
func (r *OPTRecord) SetHeader(h RRHeader) { r.H = h }

// UDPSize returns the advertised maximum UDP payload size.
func (r *OPTRecord) UDPSize() uint16 { return uint16(r.H.Class) }

// ExtendedFlags returns the extended RCODE and flags word.
func (r *OPTRecord) ExtendedFlags() uint32 { return r.H.TTL }

func (r *OPTRecord) MarshalRData() ([]byte, error) {
	return r.Options, nil
}

func parseOPTRData(msg []byte, off *int, rdlen int) (*OPTRecord, error) {
	b := make([]byte, rdlen)
	copy(b, msg[*off:*off+rdlen])
	*off += rdlen
	return &OPTRecord{Options: b}, nil
}
