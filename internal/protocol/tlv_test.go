package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/pkg/exception"
)

func TestWalkTLVSimpleEntries(t *testing.T) {
	payload := AppendTLV(nil, 1, []byte{0xAA})
	payload = AppendTLV(payload, 2, nil)
	payload = AppendTLV(payload, 3, []byte("abc"))

	var types []byte
	var values [][]byte
	err := WalkTLV(payload, func(typ byte, value []byte) bool {
		types = append(types, typ)
		values = append(values, append([]byte(nil), value...))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, types)
	assert.Equal(t, [][]byte{{0xAA}, {}, []byte("abc")}, values)
}

func TestWalkTLVExtendedEntry(t *testing.T) {
	big := bytes.Repeat([]byte{0x42}, 300)
	payload := AppendTLV(nil, 40, big)

	var gotType byte
	var gotLen int
	err := WalkTLV(payload, func(typ byte, value []byte) bool {
		gotType = typ
		gotLen = len(value)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, byte(40), gotType)
	assert.Equal(t, 300, gotLen)
}

func TestWalkTLVTruncated(t *testing.T) {
	payload := AppendTLV(nil, 1, []byte{1, 2, 3, 4})

	for cut := 1; cut < len(payload); cut++ {
		err := ValidateTLV(payload[:cut])
		assert.ErrorIs(t, err, exception.ErrTruncatedTLV, "cut=%d", cut)
	}
	assert.NoError(t, ValidateTLV(payload))
	assert.NoError(t, ValidateTLV(nil))
}

func TestWalkTLVTruncatedExtendedHeader(t *testing.T) {
	// Extended marker with not enough bytes for its 5-byte header.
	assert.ErrorIs(t, ValidateTLV([]byte{0xFF, 0x00, 0x01}), exception.ErrTruncatedTLV)
}

func TestWalkTLVBadExtendedReserved(t *testing.T) {
	payload := []byte{0xFF, 0x01, 0x05, 0x00, 0x00}
	assert.ErrorIs(t, ValidateTLV(payload), exception.ErrBadTLVMarker)
}

func TestWalkTLVEarlyStop(t *testing.T) {
	payload := AppendTLV(nil, 1, []byte{1})
	payload = AppendTLV(payload, 2, []byte{2})

	var seen int
	err := WalkTLV(payload, func(byte, []byte) bool {
		seen++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}
