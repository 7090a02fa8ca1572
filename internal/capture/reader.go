package capture

import (
	"bufio"
	"encoding/binary"
	"io"
)

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxMessageSize  int
}

// Reader decodes capture records sequentially.
type Reader struct {
	r         *bufio.Reader
	opts      ReaderOptions
	headerBuf []byte
	msg       []byte
}

// NewReader wraps an io.Reader with capture decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:         bufio.NewReader(r),
		opts:      opts,
		headerBuf: make([]byte, recordHeaderSize),
	}
}

// Next returns the next record header and message bytes.
// The message is only valid until the next call to Next.
func (r *Reader) Next() (RecordHeader, []byte, error) {
	var header RecordHeader

	n, err := io.ReadFull(r.r, r.headerBuf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return header, nil, io.EOF
		}
		return header, nil, err
	}

	header, msgLen, err := decodeRecordHeader(r.headerBuf)
	if err != nil {
		return header, nil, err
	}
	if r.opts.MaxMessageSize > 0 && msgLen > uint32(r.opts.MaxMessageSize) {
		return header, nil, ErrMessageTooLarge
	}
	if msgLen > maxMessageLen {
		return header, nil, ErrMessageTooLarge
	}

	if cap(r.msg) < int(msgLen) {
		r.msg = make([]byte, msgLen)
	}
	r.msg = r.msg[:msgLen]
	if msgLen > 0 {
		if _, err := io.ReadFull(r.r, r.msg); err != nil {
			return header, nil, err
		}
	}

	var checksumBuf [recordChecksumSize]byte
	if _, err := io.ReadFull(r.r, checksumBuf[:]); err != nil {
		return header, nil, err
	}

	if !r.opts.DisableChecksum {
		expected := binary.LittleEndian.Uint32(checksumBuf[:])
		if recordChecksum(r.headerBuf, r.msg) != expected {
			return header, nil, ErrChecksumMismatch
		}
	}

	return header, r.msg, nil
}
