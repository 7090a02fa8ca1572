package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, domain byte, payload []byte) []byte {
	t.Helper()
	return AppendMessage(nil, HeaderFields{Domain: domain, Sequence: 1}, payload)
}

func TestFramerSingleMessage(t *testing.T) {
	f := NewFramer(0)
	msg := frame(t, 25, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	f.Feed(msg)
	got, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, msg, got)

	_, ok = f.Next()
	assert.False(t, ok)
	assert.Zero(t, f.Buffered())
}

func TestFramerIncompletePayloadIsNotAMessage(t *testing.T) {
	f := NewFramer(0)
	payload := make([]byte, 100)
	msg := frame(t, 25, payload)

	// Header claims 100 payload bytes; deliver only 50.
	f.Feed(msg[:HeaderSize+50])
	_, ok := f.Next()
	require.False(t, ok)
	assert.Equal(t, HeaderSize+50, f.Buffered())

	f.Feed(msg[HeaderSize+50:])
	got, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, msg, got)
}

func TestFramerConcatenatedMessages(t *testing.T) {
	f := NewFramer(0)
	var stream []byte
	var want [][]byte
	for i := 0; i < 5; i++ {
		m := frame(t, byte(20+i), []byte{byte(i), byte(i), byte(i)})
		want = append(want, m)
		stream = append(stream, m...)
	}

	f.Feed(stream)
	for i := range want {
		got, ok := f.Next()
		require.True(t, ok, "message %d", i)
		assert.Equal(t, want[i], got, "message %d", i)
	}
	_, ok := f.Next()
	assert.False(t, ok)
}

func TestFramerByteAtATime(t *testing.T) {
	f := NewFramer(0)
	msg := frame(t, 30, []byte("tick"))

	for i := 0; i < len(msg)-1; i++ {
		f.Feed(msg[i : i+1])
		_, ok := f.Next()
		require.False(t, ok, "byte %d", i)
	}
	f.Feed(msg[len(msg)-1:])
	got, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, msg, got)
}

func TestFramerResyncsPastGarbage(t *testing.T) {
	f := NewFramer(0)
	msg := frame(t, 25, []byte{9, 9})
	garbage := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}

	f.Feed(garbage)
	f.Feed(msg)

	got, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, msg, got)
	assert.NotZero(t, f.Resyncs())
	assert.NotZero(t, f.GarbageBytes())
}

func TestFramerResyncsPastOversizedClaim(t *testing.T) {
	f := NewFramer(1024)
	// Valid magic, impossible declared payload.
	bogus := EncodeHeader(nil, HeaderFields{Domain: 25, PayloadSize: 1 << 30})
	msg := frame(t, 25, []byte{1})

	f.Feed(bogus)
	f.Feed(msg)

	got, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, msg, got)
	assert.NotZero(t, f.Resyncs())
}

func TestFramerMagicSplitAcrossChunks(t *testing.T) {
	f := NewFramer(0)
	msg := frame(t, 25, []byte("xy"))
	garbage := []byte{0xFF, 0xFE, 0xFD, 0xFC, 0xFB}

	// Garbage then the first two magic bytes, split mid-word.
	f.Feed(append(append([]byte(nil), garbage...), msg[:2]...))
	_, ok := f.Next()
	require.False(t, ok)

	f.Feed(msg[2:])
	got, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, msg, got)
}
