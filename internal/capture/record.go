// Package capture persists relay message streams to segment files and
// replays them later, optionally paced by the original arrival times.
// Captured messages are stored verbatim, so a replayed stream is
// byte-identical to what the relay saw on the wire.
package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 24
	recordChecksumSize        = 4
)

var (
	recordMagic = [4]byte{'C', 'A', 'P', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("capture invalid magic")
	ErrUnsupportedRecordVer    = errors.New("capture unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("capture invalid header size")
	ErrChecksumMismatch        = errors.New("capture checksum mismatch")
	ErrMessageTooLarge         = errors.New("capture message too large")
)

// RecordHeader describes one captured message.
type RecordHeader struct {
	// CapturedAt is the arrival timestamp in nanoseconds since epoch.
	CapturedAt uint64

	// Seq is the capture-local record sequence, assigned by the writer.
	Seq uint32
}

func encodeRecordHeader(dst []byte, h RecordHeader, msgLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint64(dst[8:16], h.CapturedAt)
	binary.LittleEndian.PutUint32(dst[16:20], uint32(msgLen))
	binary.LittleEndian.PutUint32(dst[20:24], h.Seq)
}

func decodeRecordHeader(src []byte) (RecordHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return RecordHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return RecordHeader{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return RecordHeader{}, 0, ErrUnsupportedRecordVer
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != recordHeaderSize {
		return RecordHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	h := RecordHeader{
		CapturedAt: binary.LittleEndian.Uint64(src[8:16]),
		Seq:        binary.LittleEndian.Uint32(src[20:24]),
	}
	return h, binary.LittleEndian.Uint32(src[16:20]), nil
}

func recordChecksum(header, msg []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, msg)
}
