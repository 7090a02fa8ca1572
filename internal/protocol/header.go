package protocol

import (
	"encoding/binary"

	"main/pkg/exception"
)

const (
	// Magic identifies the protocol version and must open every message.
	Magic uint32 = 0xDEADBEEF

	// Version is the current protocol version carried in every header.
	Version byte = 1

	// HeaderSize is the fixed message prefix length in bytes.
	HeaderSize = 32

	checksumOffset = 28
)

// Header is a zero-copy view over the fixed 32-byte message prefix.
// It borrows the underlying buffer; the caller must keep the buffer
// alive and unmodified for as long as the view is used.
type Header []byte

// ParseHeader validates the message prefix and returns a borrowed view.
// The magic word is checked before anything else: it is the cheapest
// discriminator of garbage or misaligned streams.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) >= 4 && binary.LittleEndian.Uint32(buf) != Magic {
		return nil, exception.ErrBadMagic
	}
	if len(buf) < HeaderSize {
		return nil, exception.ErrShortHeader
	}
	return Header(buf[:HeaderSize]), nil
}

// Domain returns the domain marker used for relay filtering.
func (h Header) Domain() byte { return h[4] }

// Version returns the protocol version byte.
func (h Header) Version() byte { return h[5] }

// Source returns the producing service identifier.
func (h Header) Source() byte { return h[6] }

// Flags returns the header flag bits.
func (h Header) Flags() byte { return h[7] }

// Sequence returns the per-source monotonic sequence number.
func (h Header) Sequence() uint64 { return binary.LittleEndian.Uint64(h[8:16]) }

// Timestamp returns the producer timestamp in nanoseconds since epoch.
func (h Header) Timestamp() uint64 { return binary.LittleEndian.Uint64(h[16:24]) }

// PayloadSize returns the declared TLV payload length in bytes.
func (h Header) PayloadSize() uint32 { return binary.LittleEndian.Uint32(h[24:28]) }

// Checksum returns the CRC32 carried in the header.
func (h Header) Checksum() uint32 { return binary.LittleEndian.Uint32(h[28:32]) }

// TotalSize returns the full framed message length, header included.
func (h Header) TotalSize() int { return HeaderSize + int(h.PayloadSize()) }

// HeaderFields is the decoded header for producers and diagnostics.
// The relay hot path works on the Header view instead.
type HeaderFields struct {
	Domain      byte
	Version     byte
	Source      byte
	Flags       byte
	Sequence    uint64
	Timestamp   uint64
	PayloadSize uint32
	Checksum    uint32
}

// Fields decodes the view into a HeaderFields copy.
func (h Header) Fields() HeaderFields {
	return HeaderFields{
		Domain:      h.Domain(),
		Version:     h.Version(),
		Source:      h.Source(),
		Flags:       h.Flags(),
		Sequence:    h.Sequence(),
		Timestamp:   h.Timestamp(),
		PayloadSize: h.PayloadSize(),
		Checksum:    h.Checksum(),
	}
}

// EncodeHeader serializes a header into a fixed 32-byte block.
func EncodeHeader(dst []byte, f HeaderFields) []byte {
	if cap(dst) < HeaderSize {
		dst = make([]byte, HeaderSize)
	} else {
		dst = dst[:HeaderSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], Magic)
	dst[4] = f.Domain
	dst[5] = f.Version
	dst[6] = f.Source
	dst[7] = f.Flags
	binary.LittleEndian.PutUint64(dst[8:16], f.Sequence)
	binary.LittleEndian.PutUint64(dst[16:24], f.Timestamp)
	binary.LittleEndian.PutUint32(dst[24:28], f.PayloadSize)
	binary.LittleEndian.PutUint32(dst[28:32], f.Checksum)

	return dst
}

// AppendMessage frames a complete message onto dst: header with the
// payload size and checksum filled in, followed by the payload.
func AppendMessage(dst []byte, f HeaderFields, payload []byte) []byte {
	f.Version = Version
	f.PayloadSize = uint32(len(payload))
	f.Checksum = 0

	var hdr [HeaderSize]byte
	EncodeHeader(hdr[:0], f)
	sum := Checksum(hdr[:], payload)
	binary.LittleEndian.PutUint32(hdr[checksumOffset:], sum)

	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}
