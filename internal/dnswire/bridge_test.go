package dnswire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	q := Question{Name: "example.com", Type: TypeA, Class: ClassIN}
	assert.Equal(t, "example.com:A:IN", CacheKey(q))

	// Case differences collapse into the same key.
	upper := Question{Name: "EXAMPLE.Com", Type: TypeA, Class: ClassIN}
	assert.Equal(t, CacheKey(q), CacheKey(upper))

	aaaa := Question{Name: "example.com", Type: TypeAAAA, Class: ClassIN}
	assert.NotEqual(t, CacheKey(q), CacheKey(aaaa))
}

func TestExtractQuestion(t *testing.T) {
	_, p := testQuery(t, "example.com", TypeA)
	q, err := ExtractQuestion(p)
	require.NoError(t, err)
	assert.Equal(t, "example.com", q.Name)

	_, err = ExtractQuestion(Packet{})
	assert.ErrorIs(t, err, ErrNoQuestion)
}

func TestExtractIPs(t *testing.T) {
	resp := testResponse(t, "example.com", 60, "93.184.216.34")
	assert.Equal(t, []string{"93.184.216.34"}, ExtractIPs(resp))
	assert.Empty(t, ExtractIPs(Packet{}))
}

func TestMinTTLSeconds(t *testing.T) {
	resp := testResponse(t, "example.com", 60, "93.184.216.34")
	assert.Equal(t, uint32(60), MinTTLSeconds(resp))

	// OPT pseudo-records carry EDNS flags in the TTL field and must not
	// participate in the minimum.
	resp.Additionals = append(resp.Additionals, &OPTRecord{
		H: RRHeader{Class: RecordClass(1232), TTL: 0},
	})
	assert.Equal(t, uint32(60), MinTTLSeconds(resp))

	resp.Answers = append(resp.Answers, &NameRecord{
		H: RRHeader{Name: "example.com", Class: ClassIN, TTL: 30}, T: TypeCNAME, Target: "cdn.example.com",
	})
	assert.Equal(t, uint32(30), MinTTLSeconds(resp))

	// No records at all floors at the default.
	assert.Equal(t, uint32(DefaultCacheTTLSeconds), MinTTLSeconds(Packet{}))
}

func TestCraftNXDOMAIN(t *testing.T) {
	query, _ := testQuery(t, "ads.example", TypeA)

	out := CraftNXDOMAIN(query)
	require.NotEmpty(t, out)

	p, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), p.Header.ID)
	assert.Equal(t, RCodeNXDomain, p.RCode())
	assert.True(t, p.Header.IsResponse())
	assert.NotZero(t, p.Header.Flags&RDFlag, "RD copied from query")
	assert.NotZero(t, p.Header.Flags&RAFlag)
	assert.Empty(t, p.Answers)
	require.Len(t, p.Questions, 1)
	assert.Equal(t, "ads.example", p.Questions[0].Name)
}

func TestCraftSERVFAIL(t *testing.T) {
	query, _ := testQuery(t, "example.com", TypeA)

	p, err := Decode(CraftSERVFAIL(query))
	require.NoError(t, err)
	assert.Equal(t, RCodeServFail, p.RCode())
	assert.Equal(t, uint16(0x1234), p.Header.ID)
}

func TestCraftSERVFAILGarbage(t *testing.T) {
	// Even two raw bytes yield a response carrying the salvaged id.
	out := CraftSERVFAIL([]byte{0xAB, 0xCD})
	require.NotEmpty(t, out)
	p, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xABCD), p.Header.ID)
	assert.Equal(t, RCodeServFail, p.RCode())

	assert.Nil(t, CraftSERVFAIL(nil))
}

func TestCraftFromCached(t *testing.T) {
	_, origQuery := testQuery(t, "example.com", TypeA)
	cached := testResponse(t, "example.com", 60, "93.184.216.34")

	out, err := CraftFromCached(origQuery, cached, 42)
	require.NoError(t, err)

	p, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, origQuery.Header.ID, p.Header.ID)
	assert.Equal(t, cached.Header.Flags, p.Header.Flags)
	require.Len(t, p.Answers, 1)
	assert.Equal(t, uint32(42), p.Answers[0].Header().TTL)

	// The cached packet's own records keep their original TTL.
	assert.Equal(t, uint32(60), cached.Answers[0].Header().TTL)
}
