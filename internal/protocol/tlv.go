package protocol

import (
	"encoding/binary"

	"main/pkg/exception"
)

const (
	// extendedTLVMarker opens a 5-byte extended entry header carrying
	// a 16-bit length for values above 255 bytes.
	extendedTLVMarker = 0xFF

	simpleTLVHeaderSize   = 2
	extendedTLVHeaderSize = 5
)

// WalkTLV iterates the TLV entries of a payload, calling fn for each
// entry value. Iteration stops early when fn returns false. The value
// slices borrow the payload.
//
// Entries are either simple ([type u8][len u8][value]) or extended
// ([0xFF][0x00][type u8][len u16][value]); a truncated entry or a
// malformed extended header fails the walk.
func WalkTLV(payload []byte, fn func(typ byte, value []byte) bool) error {
	for off := 0; off < len(payload); {
		rest := payload[off:]
		if rest[0] == extendedTLVMarker {
			if len(rest) < extendedTLVHeaderSize {
				return exception.ErrTruncatedTLV
			}
			if rest[1] != 0 {
				return exception.ErrBadTLVMarker
			}
			typ := rest[2]
			length := int(binary.LittleEndian.Uint16(rest[3:5]))
			if len(rest) < extendedTLVHeaderSize+length {
				return exception.ErrTruncatedTLV
			}
			if fn != nil && !fn(typ, rest[extendedTLVHeaderSize:extendedTLVHeaderSize+length]) {
				return nil
			}
			off += extendedTLVHeaderSize + length
			continue
		}

		if len(rest) < simpleTLVHeaderSize {
			return exception.ErrTruncatedTLV
		}
		typ, length := rest[0], int(rest[1])
		if len(rest) < simpleTLVHeaderSize+length {
			return exception.ErrTruncatedTLV
		}
		if fn != nil && !fn(typ, rest[simpleTLVHeaderSize:simpleTLVHeaderSize+length]) {
			return nil
		}
		off += simpleTLVHeaderSize + length
	}
	return nil
}

// ValidateTLV checks the structural integrity of a payload without
// inspecting entry values.
func ValidateTLV(payload []byte) error {
	return WalkTLV(payload, nil)
}

// AppendTLV frames one entry onto dst, choosing the simple or extended
// form by value length.
func AppendTLV(dst []byte, typ byte, value []byte) []byte {
	if len(value) > 0xFF || typ == extendedTLVMarker {
		dst = append(dst, extendedTLVMarker, 0, typ)
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(value)))
		dst = append(dst, l[:]...)
		return append(dst, value...)
	}
	dst = append(dst, typ, byte(len(value)))
	return append(dst, value...)
}
