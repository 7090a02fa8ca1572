package protocol

import (
	"hash/crc32"

	"main/pkg/exception"
)

// Checksum computes the CRC32 integrity value for a message: header
// bytes before the checksum field, then the payload. The checksum
// field itself is excluded so the value can be written in place.
func Checksum(header, payload []byte) uint32 {
	sum := crc32.Update(0, crc32.IEEETable, header[:checksumOffset])
	return crc32.Update(sum, crc32.IEEETable, payload)
}

// VerifyChecksum recomputes the message CRC32 and compares it to the
// header value. This is the most expensive per-message step; the relay
// only runs it on sampled messages.
func VerifyChecksum(h Header, payload []byte) error {
	if Checksum(h, payload) != h.Checksum() {
		return exception.ErrChecksumMismatch
	}
	return nil
}
