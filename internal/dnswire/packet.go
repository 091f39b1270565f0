package dnswire

import (
	"errors"
	"fmt"

	"github.com/deckyfx/dnsgate/internal/helpers"
)

// Limits for incoming DNS messages to prevent resource exhaustion.
const (
	MaxIncomingMessageSize = 4096 // Maximum size of an incoming DNS message
	MaxQuestions           = 4    // Maximum questions per message
	MaxRRPerSection        = 100  // Maximum resource records per section
	MaxTotalRR             = 200  // Maximum total resource records
)

// Packet represents a complete DNS message (RFC 1035 Section 4).
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// RCode extracts the response code from the header flags.
func (p Packet) RCode() RCode {
	return RCodeFromFlags(p.Header.Flags)
}

// Marshal serializes the packet to DNS wire format, recomputing the section
// counts from the actual slices.
func (p Packet) Marshal() ([]byte, error) {
	h := Header{
		ID:      p.Header.ID,
		Flags:   p.Header.Flags,
		QDCount: helpers.ClampIntToUint16(len(p.Questions)),
		ANCount: helpers.ClampIntToUint16(len(p.Answers)),
		NSCount: helpers.ClampIntToUint16(len(p.Authorities)),
		ARCount: helpers.ClampIntToUint16(len(p.Additionals)),
	}

	estimated := HeaderSize + len(p.Questions)*50 +
		(len(p.Answers)+len(p.Authorities)+len(p.Additionals))*100
	out := make([]byte, 0, estimated)
	out = append(out, h.Marshal()...)
	for _, q := range p.Questions {
		qb, err := q.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, qb...)
	}
	for _, section := range [][]Record{p.Answers, p.Authorities, p.Additionals} {
		for _, rr := range section {
			b, err := MarshalRecord(rr)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
	}
	return out, nil
}

// Decode parses a full DNS message. Section counts from the header are
// capped before allocation so a hostile header cannot force a large alloc.
func Decode(msg []byte) (Packet, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Header: h}

	limit := func(count uint16, cap int) int {
		if int(count) > cap {
			return cap
		}
		return int(count)
	}

	p.Questions = make([]Question, 0, limit(h.QDCount, MaxQuestions))
	for range h.QDCount {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}
	p.Answers = make([]Record, 0, limit(h.ANCount, MaxRRPerSection))
	for range h.ANCount {
		rr, err := ParseRecord(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Answers = append(p.Answers, rr)
	}
	p.Authorities = make([]Record, 0, limit(h.NSCount, MaxRRPerSection))
	for range h.NSCount {
		rr, err := ParseRecord(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Authorities = append(p.Authorities, rr)
	}
	p.Additionals = make([]Record, 0, limit(h.ARCount, MaxRRPerSection))
	for range h.ARCount {
		rr, err := ParseRecord(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Additionals = append(p.Additionals, rr)
	}
	return p, nil
}

// DecodeQuery parses an inbound DNS request with bounds checking: the
// message must be a standard query (QR clear, opcode 0) with exactly one
// question and sane section counts.
func DecodeQuery(msg []byte) (Packet, error) {
	if len(msg) > MaxIncomingMessageSize {
		return Packet{}, fmt.Errorf("%w: message too large", ErrMalformedPacket)
	}
	p, err := Decode(msg)
	if err != nil {
		return Packet{}, err
	}

	if p.Header.IsResponse() {
		return Packet{}, fmt.Errorf("%w: QR flag set on query", ErrMalformedPacket)
	}
	if opcode := p.Header.Opcode(); opcode != 0 {
		return Packet{}, fmt.Errorf("%w: unsupported opcode %d", ErrMalformedPacket, opcode)
	}
	if err := validateSectionCounts(p.Header); err != nil {
		return Packet{}, err
	}
	return p, nil
}

func validateSectionCounts(h Header) error {
	qd := int(h.QDCount)
	an := int(h.ANCount)
	ns := int(h.NSCount)
	ar := int(h.ARCount)

	if qd > MaxQuestions {
		return fmt.Errorf("%w: too many questions", ErrMalformedPacket)
	}
	if qd != 1 {
		return fmt.Errorf("%w: question count %d", ErrMalformedPacket, qd)
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return fmt.Errorf("%w: too many resource records", ErrMalformedPacket)
	}
	if an+ns+ar > MaxTotalRR {
		return fmt.Errorf("%w: too many total resource records", ErrMalformedPacket)
	}
	return nil
}

// IsTruncated reports whether the TC bit is set in raw response bytes.
func IsTruncated(msg []byte) bool {
	if len(msg) < 4 {
		return false
	}
	return msg[2]&0x02 != 0
}

// ErrNoQuestion is returned by ExtractQuestion on a packet with an empty
// question section.
var ErrNoQuestion = errors.New("packet has no question")
