package exception

import "github.com/yanun0323/errors"

// Protocol errors
var (
	// ErrShortHeader is returned when fewer than HeaderSize bytes are available.
	ErrShortHeader = errors.New("protocol: insufficient data for header")

	// ErrBadMagic is returned when the first four bytes are not the protocol magic.
	ErrBadMagic = errors.New("protocol: invalid magic")

	// ErrChecksumMismatch is returned when the recomputed CRC32 differs from the header.
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")

	// ErrPayloadTooLarge is returned when a header declares a payload above the frame limit.
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds frame limit")

	// ErrTruncatedTLV is returned when a TLV entry extends past the payload end.
	ErrTruncatedTLV = errors.New("protocol: truncated tlv entry")

	// ErrBadTLVMarker is returned when an extended TLV entry has a non-zero reserved byte.
	ErrBadTLVMarker = errors.New("protocol: malformed extended tlv header")
)
