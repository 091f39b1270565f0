package dnswire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"example.com.", "example.com"},
		{"*.ads.example", "ads.example"},
		{"EXAMPLE.com..", "example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestEncodeNameRoundTrip(t *testing.T) {
	b, err := EncodeName("www.example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}, b)

	off := 0
	name, err := DecodeName(b, &off)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", name)
	assert.Equal(t, len(b), off)
}

func TestEncodeNameRoot(t *testing.T) {
	b, err := EncodeName(".")
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, b)
}

func TestEncodeNameErrors(t *testing.T) {
	_, err := EncodeName("")
	assert.ErrorIs(t, err, ErrMalformedPacket)

	_, err = EncodeName("a..b")
	assert.ErrorIs(t, err, ErrMalformedPacket)

	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	_, err = EncodeName(string(long) + ".com")
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodeNameCompression(t *testing.T) {
	// "example.com" at offset 0, then a pointer to it at offset 13.
	msg := []byte{
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0,
		0xC0, 0x00,
	}
	off := 13
	name, err := DecodeName(msg, &off)
	require.NoError(t, err)
	assert.Equal(t, "example.com", name)
	assert.Equal(t, 15, off)
}

func TestDecodeNamePrefixedCompression(t *testing.T) {
	// "www" + pointer to "example.com".
	msg := []byte{
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0,
		3, 'w', 'w', 'w', 0xC0, 0x00,
	}
	off := 13
	name, err := DecodeName(msg, &off)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", name)
}

func TestDecodeNamePointerLoop(t *testing.T) {
	msg := []byte{0xC0, 0x02, 0xC0, 0x00}
	off := 0
	_, err := DecodeName(msg, &off)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodeNameTruncated(t *testing.T) {
	msg := []byte{5, 'a', 'b'}
	off := 0
	_, err := DecodeName(msg, &off)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}
