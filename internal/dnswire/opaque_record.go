package dnswire

// OpaqueRecord carries a record of a type the proxy does not model (CAA,
// DNSSEC types, ...). RDATA is kept verbatim so the record round-trips
// unchanged. Records containing compression pointers inside their RDATA do
// not survive re-encoding intact; the modeled types above cover every type
// RFC 3597 permits pointers in.
type OpaqueRecord struct {
	H    RRHeader
	T    RecordType
	Data []byte
}

func (r *OpaqueRecord) Type() RecordType     { return r.T }
func (r *OpaqueRecord) Header() RRHeader     { return r.H }
func (r *OpaqueRecord) SetHeader(h RRHeader) { r.H = h }

func (r *OpaqueRecord) MarshalRData() ([]byte, error) {
	return r.Data, nil
}

func parseOpaqueRData(msg []byte, off *int, rdlen int, rt RecordType) (*OpaqueRecord, error) {
	b := make([]byte, rdlen)
	copy(b, msg[*off:*off+rdlen])
	*off += rdlen
	return &OpaqueRecord{T: rt, Data: b}, nil
}
