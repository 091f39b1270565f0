package dnswire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQuery(t *testing.T, name string, qtype RecordType) ([]byte, Packet) {
	t.Helper()
	p := Packet{
		Header:    Header{ID: 0x1234, Flags: RDFlag},
		Questions: []Question{{Name: name, Type: qtype, Class: ClassIN}},
	}
	b, err := p.Marshal()
	require.NoError(t, err)
	return b, p
}

func testResponse(t *testing.T, name string, ttl uint32, ip string) Packet {
	t.Helper()
	return Packet{
		Header:    Header{ID: 0x1234, Flags: QRFlag | RDFlag | RAFlag},
		Questions: []Question{{Name: name, Type: TypeA, Class: ClassIN}},
		Answers: []Record{
			&IPRecord{
				H:    RRHeader{Name: name, Class: ClassIN, TTL: ttl},
				Addr: net.ParseIP(ip),
			},
		},
	}
}

func TestQueryRoundTrip(t *testing.T) {
	b, _ := testQuery(t, "example.com", TypeA)

	p, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), p.Header.ID)
	require.Len(t, p.Questions, 1)
	assert.Equal(t, "example.com", p.Questions[0].Name)
	assert.Equal(t, TypeA, p.Questions[0].Type)
	assert.Equal(t, ClassIN, p.Questions[0].Class)
}

func TestResponseRoundTrip(t *testing.T) {
	resp := testResponse(t, "example.com", 60, "93.184.216.34")
	b, err := resp.Marshal()
	require.NoError(t, err)

	p, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, p.Answers, 1)

	ip, ok := p.Answers[0].(*IPRecord)
	require.True(t, ok)
	assert.Equal(t, TypeA, ip.Type())
	assert.Equal(t, "93.184.216.34", ip.Addr.String())
	assert.Equal(t, uint32(60), ip.Header().TTL)
	assert.Equal(t, "example.com", ip.Header().Name)
}

func TestMXRoundTrip(t *testing.T) {
	resp := Packet{
		Header:    Header{ID: 7, Flags: QRFlag},
		Questions: []Question{{Name: "example.com", Type: TypeMX, Class: ClassIN}},
		Answers: []Record{
			&MXRecord{
				H:          RRHeader{Name: "example.com", Class: ClassIN, TTL: 300},
				Preference: 10,
				Exchange:   "mail.example.com",
			},
		},
	}
	b, err := resp.Marshal()
	require.NoError(t, err)

	p, err := Decode(b)
	require.NoError(t, err)
	mx, ok := p.Answers[0].(*MXRecord)
	require.True(t, ok)
	assert.Equal(t, uint16(10), mx.Preference)
	assert.Equal(t, "mail.example.com", mx.Exchange)
}

func TestSRVRoundTrip(t *testing.T) {
	resp := Packet{
		Header:    Header{ID: 8, Flags: QRFlag},
		Questions: []Question{{Name: "_sip._tcp.example.com", Type: TypeSRV, Class: ClassIN}},
		Answers: []Record{
			&SRVRecord{
				H:        RRHeader{Name: "_sip._tcp.example.com", Class: ClassIN, TTL: 120},
				Priority: 1, Weight: 5, Port: 5060,
				Target: "sip.example.com",
			},
		},
	}
	b, err := resp.Marshal()
	require.NoError(t, err)

	p, err := Decode(b)
	require.NoError(t, err)
	srv, ok := p.Answers[0].(*SRVRecord)
	require.True(t, ok)
	assert.Equal(t, uint16(5060), srv.Port)
	assert.Equal(t, "sip.example.com", srv.Target)
}

func TestSOARoundTrip(t *testing.T) {
	resp := Packet{
		Header:    Header{ID: 9, Flags: QRFlag | uint16(RCodeNXDomain)},
		Questions: []Question{{Name: "missing.example.com", Type: TypeA, Class: ClassIN}},
		Authorities: []Record{
			&SOARecord{
				H:     RRHeader{Name: "example.com", Class: ClassIN, TTL: 900},
				MName: "ns1.example.com", RName: "hostmaster.example.com",
				Serial: 2024010101, Refresh: 7200, Retry: 900, Expire: 1209600, Minimum: 300,
			},
		},
	}
	b, err := resp.Marshal()
	require.NoError(t, err)

	p, err := Decode(b)
	require.NoError(t, err)
	soa, ok := p.Authorities[0].(*SOARecord)
	require.True(t, ok)
	assert.Equal(t, uint32(300), soa.Minimum)
	assert.Equal(t, "ns1.example.com", soa.MName)
}

func TestTXTRoundTrip(t *testing.T) {
	resp := Packet{
		Header:    Header{ID: 10, Flags: QRFlag},
		Questions: []Question{{Name: "example.com", Type: TypeTXT, Class: ClassIN}},
		Answers: []Record{
			&TXTRecord{
				H:       RRHeader{Name: "example.com", Class: ClassIN, TTL: 60},
				Strings: []string{"v=spf1 -all", "second"},
			},
		},
	}
	b, err := resp.Marshal()
	require.NoError(t, err)

	p, err := Decode(b)
	require.NoError(t, err)
	txt, ok := p.Answers[0].(*TXTRecord)
	require.True(t, ok)
	assert.Equal(t, []string{"v=spf1 -all", "second"}, txt.Strings)
}

func TestUnknownTypeRoundTrip(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04}
	resp := Packet{
		Header:    Header{ID: 11, Flags: QRFlag},
		Questions: []Question{{Name: "example.com", Type: RecordType(99), Class: ClassIN}},
		Answers: []Record{
			&OpaqueRecord{
				H:    RRHeader{Name: "example.com", Class: ClassIN, TTL: 30},
				T:    RecordType(99),
				Data: raw,
			},
		},
	}
	b, err := resp.Marshal()
	require.NoError(t, err)

	p, err := Decode(b)
	require.NoError(t, err)
	op, ok := p.Answers[0].(*OpaqueRecord)
	require.True(t, ok)
	assert.Equal(t, RecordType(99), op.Type())
	assert.Equal(t, raw, op.Data)
}

func TestDecodeQueryRejectsResponses(t *testing.T) {
	resp := testResponse(t, "example.com", 60, "1.2.3.4")
	b, err := resp.Marshal()
	require.NoError(t, err)

	_, err = DecodeQuery(b)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodeQueryRejectsZeroQuestions(t *testing.T) {
	p := Packet{Header: Header{ID: 1}}
	b, err := p.Marshal()
	require.NoError(t, err)

	_, err = DecodeQuery(b)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestIsTruncated(t *testing.T) {
	p := Packet{
		Header:    Header{ID: 5, Flags: QRFlag | TCFlag},
		Questions: []Question{{Name: "example.com", Type: TypeA, Class: ClassIN}},
	}
	b, err := p.Marshal()
	require.NoError(t, err)
	assert.True(t, IsTruncated(b))

	q, _ := testQuery(t, "example.com", TypeA)
	assert.False(t, IsTruncated(q))
}
