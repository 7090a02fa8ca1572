package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/pkg/exception"
)

func validMessage(t *testing.T, domain byte, payload []byte) []byte {
	t.Helper()
	return AppendMessage(nil, HeaderFields{
		Domain:    domain,
		Source:    7,
		Sequence:  42,
		Timestamp: 1700000000000000000,
	}, payload)
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	msg := validMessage(t, 25, []byte{1, 2, 3, 4})

	for _, mutate := range []func([]byte){
		func(b []byte) { b[0] ^= 0xFF },
		func(b []byte) { b[3] = 0x00 },
		func(b []byte) { binary.LittleEndian.PutUint32(b, 0) },
	} {
		bad := append([]byte(nil), msg...)
		mutate(bad)
		_, err := ParseHeader(bad)
		assert.ErrorIs(t, err, exception.ErrBadMagic)
	}

	// Bad magic wins even when the buffer is also short.
	short := []byte{0x00, 0x00, 0x00, 0x00, 0x01}
	_, err := ParseHeader(short)
	assert.ErrorIs(t, err, exception.ErrBadMagic)
}

func TestParseHeaderRejectsShortBuffer(t *testing.T) {
	msg := validMessage(t, 25, nil)

	for _, n := range []int{0, 1, 3, 4, 16, 31} {
		_, err := ParseHeader(msg[:n])
		if n >= 4 {
			assert.ErrorIs(t, err, exception.ErrShortHeader, "len=%d", n)
		} else {
			assert.Error(t, err, "len=%d", n)
		}
	}
}

func TestHeaderAccessors(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	msg := AppendMessage(nil, HeaderFields{
		Domain:    33,
		Source:    2,
		Flags:     0x80,
		Sequence:  999,
		Timestamp: 12345,
	}, payload)

	h, err := ParseHeader(msg)
	require.NoError(t, err)

	assert.Equal(t, byte(33), h.Domain())
	assert.Equal(t, Version, h.Version())
	assert.Equal(t, byte(2), h.Source())
	assert.Equal(t, byte(0x80), h.Flags())
	assert.Equal(t, uint64(999), h.Sequence())
	assert.Equal(t, uint64(12345), h.Timestamp())
	assert.Equal(t, uint32(len(payload)), h.PayloadSize())
	assert.Equal(t, HeaderSize+len(payload), h.TotalSize())
	assert.Equal(t, len(msg), h.TotalSize())
}

func TestHeaderFieldsRoundtrip(t *testing.T) {
	want := HeaderFields{
		Domain:      45,
		Version:     Version,
		Source:      9,
		Flags:       1,
		Sequence:    1 << 40,
		Timestamp:   1 << 50,
		PayloadSize: 64,
		Checksum:    0xCAFEBABE,
	}
	buf := EncodeHeader(nil, want)
	h, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, want, h.Fields())
}

func TestChecksumRoundtrip(t *testing.T) {
	payload := []byte("order-intent")
	msg := validMessage(t, 45, payload)
	h, err := ParseHeader(msg)
	require.NoError(t, err)

	require.NoError(t, VerifyChecksum(h, msg[HeaderSize:]))

	corrupted := append([]byte(nil), msg...)
	corrupted[HeaderSize] ^= 0x01
	h2, err := ParseHeader(corrupted)
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyChecksum(h2, corrupted[HeaderSize:]), exception.ErrChecksumMismatch)
}

func TestChecksumCoversHeaderPrefix(t *testing.T) {
	msg := validMessage(t, 25, []byte{1})
	corrupted := append([]byte(nil), msg...)
	corrupted[8] ^= 0xFF // sequence byte

	h, err := ParseHeader(corrupted)
	require.NoError(t, err)
	assert.Error(t, VerifyChecksum(h, corrupted[HeaderSize:]))
}
