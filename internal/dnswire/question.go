package dnswire

import (
	"encoding/binary"
	"fmt"
)

// Question represents a DNS question section entry (RFC 1035 Section 4.1.2).
// Name is normalized to lowercase during parsing so that cache keys and list
// lookups compare case-insensitively.
type Question struct {
	Name  string
	Type  RecordType
	Class RecordClass
}

// Marshal serializes the question to DNS wire format.
func (q Question) Marshal() ([]byte, error) {
	name, err := EncodeName(q.Name)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, len(name)+4)
	b = append(b, name...)
	var fixed [4]byte
	binary.BigEndian.PutUint16(fixed[0:2], uint16(q.Type))
	binary.BigEndian.PutUint16(fixed[2:4], uint16(q.Class))
	return append(b, fixed[:]...), nil
}

// ParseQuestion parses a question at *off, advancing it past the entry.
func ParseQuestion(msg []byte, off *int) (Question, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Question{}, err
	}
	if *off+4 > len(msg) {
		return Question{}, fmt.Errorf("%w: truncated question", ErrMalformedPacket)
	}
	q := Question{
		Name:  NormalizeName(name),
		Type:  RecordType(binary.BigEndian.Uint16(msg[*off : *off+2])),
		Class: RecordClass(binary.BigEndian.Uint16(msg[*off+2 : *off+4])),
	}
	*off += 4
	return q, nil
}
