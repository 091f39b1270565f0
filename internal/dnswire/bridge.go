package dnswire

import (
	"strings"
)

// DefaultCacheTTLSeconds is the cache TTL applied when a response carries no
// non-OPT records to take a minimum over.
const DefaultCacheTTLSeconds = 300

// ExtractQuestion returns the first question of the packet.
func ExtractQuestion(p Packet) (Question, error) {
	if len(p.Questions) == 0 {
		return Question{}, ErrNoQuestion
	}
	return p.Questions[0], nil
}

// CacheKey derives the cache slot for a question: lower(name):TYPE:CLASS.
// The question name is already normalized during parsing; normalizing again
// keeps keys stable for hand-built questions.
func CacheKey(q Question) string {
	var b strings.Builder
	name := NormalizeName(q.Name)
	typ := q.Type.String()
	class := q.Class.String()
	b.Grow(len(name) + len(typ) + len(class) + 2)
	b.WriteString(name)
	b.WriteByte(':')
	b.WriteString(typ)
	b.WriteByte(':')
	b.WriteString(class)
	return b.String()
}

// ExtractIPs collects the address strings of all A and AAAA answers.
func ExtractIPs(p Packet) []string {
	ips := make([]string, 0, len(p.Answers))
	for _, rr := range p.Answers {
		if ip, ok := rr.(*IPRecord); ok {
			ips = append(ips, ip.Addr.String())
		}
	}
	return ips
}

// MinTTLSeconds returns the smallest TTL across every non-OPT record in the
// packet, or DefaultCacheTTLSeconds when the packet carries no such record.
// The OPT pseudo-record has no TTL (its TTL field holds EDNS flags) and is
// skipped.
func MinTTLSeconds(p Packet) uint32 {
	var minTTL uint32
	found := false
	for _, section := range [][]Record{p.Answers, p.Authorities, p.Additionals} {
		for _, rr := range section {
			if rr.Type() == TypeOPT {
				continue
			}
			ttl := rr.Header().TTL
			if !found || ttl < minTTL {
				minTTL = ttl
				found = true
			}
		}
	}
	if !found {
		return DefaultCacheTTLSeconds
	}
	return minTTL
}

// BuildErrorResponse constructs an answerless response packet for the given
// request: transaction ID and questions preserved, QR and RA set, RD copied
// from the request, the given rcode applied.
func BuildErrorResponse(req Packet, rcode RCode) Packet {
	flags := QRFlag | RAFlag
	flags |= req.Header.Flags & RDFlag
	flags = (flags &^ RCodeMask) | (uint16(rcode) & RCodeMask)

	return Packet{
		Header:    Header{ID: req.Header.ID, Flags: flags},
		Questions: req.Questions,
	}
}

// CraftNXDOMAIN builds the wire bytes of an NXDOMAIN response to the given
// raw query. Used by the gate stage to answer blocked names.
func CraftNXDOMAIN(query []byte) []byte {
	return craftError(query, RCodeNXDomain)
}

// CraftSERVFAIL builds the wire bytes of a SERVFAIL response to the given
// raw query. Used for malformed packets and total upstream failure.
func CraftSERVFAIL(query []byte) []byte {
	return craftError(query, RCodeServFail)
}

// craftError answers raw query bytes with an error response, salvaging as
// much of the original header and question as the bytes allow. Even a
// truncated header yields a minimal response so the listener never has to
// drop a datagram; only an empty input returns nil.
func craftError(query []byte, rcode RCode) []byte {
	if p, err := Decode(query); err == nil {
		b, err := BuildErrorResponse(p, rcode).Marshal()
		if err == nil {
			return b
		}
	}

	// Fall back to scraping header and first question from the raw bytes.
	off := 0
	h, err := ParseHeader(query, &off)
	if err != nil {
		if len(query) == 0 {
			return nil
		}
		h = Header{}
		if len(query) >= 2 {
			h.ID = uint16(query[0])<<8 | uint16(query[1])
		}
	}

	var questions []Question
	if h.QDCount > 0 {
		if q, err := ParseQuestion(query, &off); err == nil {
			questions = []Question{q}
		}
	}

	p := Packet{Header: Header{ID: h.ID, Flags: h.Flags}, Questions: questions}
	b, _ := BuildErrorResponse(p, rcode).Marshal()
	return b
}

// CraftFromCached builds a response to origQuery from a previously cached
// response packet. The cached answer sections are copied onto the original
// question with every non-OPT TTL replaced by remainingSeconds; flags come
// from the cached response, the transaction ID from the query.
func CraftFromCached(origQuery Packet, cached Packet, remainingSeconds uint32) ([]byte, error) {
	out := Packet{
		Header: Header{
			ID:    origQuery.Header.ID,
			Flags: cached.Header.Flags,
		},
		Questions:   origQuery.Questions,
		Answers:     rewriteTTLs(cached.Answers, remainingSeconds),
		Authorities: rewriteTTLs(cached.Authorities, remainingSeconds),
		Additionals: rewriteTTLs(cached.Additionals, remainingSeconds),
	}
	return out.Marshal()
}

// rewriteTTLs returns a copy of the section with every non-OPT record's TTL
// replaced. The cached records themselves are not mutated: they stay in the
// cache and will be re-served with a smaller TTL later.
func rewriteTTLs(section []Record, ttl uint32) []Record {
	out := make([]Record, 0, len(section))
	for _, rr := range section {
		if rr.Type() == TypeOPT {
			out = append(out, rr)
			continue
		}
		clone := cloneRecord(rr)
		h := clone.Header()
		h.TTL = ttl
		clone.SetHeader(h)
		out = append(out, clone)
	}
	return out
}

// cloneRecord shallow-copies a record so its header can be rewritten without
// touching the original. RDATA is immutable once parsed, so sharing it is
// safe.
func cloneRecord(rr Record) Record {
	switch r := rr.(type) {
	case *IPRecord:
		c := *r
		return &c
	case *NameRecord:
		c := *r
		return &c
	case *MXRecord:
		c := *r
		return &c
	case *SRVRecord:
		c := *r
		return &c
	case *SOARecord:
		c := *r
		return &c
	case *TXTRecord:
		c := *r
		return &c
	case *OPTRecord:
		c := *r
		return &c
	case *OpaqueRecord:
		c := *r
		return &c
	default:
		return rr
	}
}
