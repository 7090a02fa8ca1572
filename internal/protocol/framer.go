package protocol

import "encoding/binary"

// DefaultMaxPayload caps declared payload sizes. A header claiming more
// is treated as stream corruption, not as a message to wait for.
const DefaultMaxPayload = 1 << 20

// Framer reassembles length-framed messages from arbitrary stream
// chunks. Messages carry no delimiter: framing is purely the declared
// 32+payload_size length, so partial reads must be buffered until a
// complete message is available.
//
// A Framer is not safe for concurrent use; each connection owns one.
type Framer struct {
	buf        []byte
	off        int
	maxPayload int

	resyncs      uint64
	garbageBytes uint64
}

// NewFramer creates a framer with the given payload cap.
func NewFramer(maxPayload int) *Framer {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Framer{maxPayload: maxPayload}
}

// Feed appends a chunk read from the stream.
func (f *Framer) Feed(p []byte) {
	if f.off > 0 && f.off == len(f.buf) {
		f.buf = f.buf[:0]
		f.off = 0
	}
	f.buf = append(f.buf, p...)
}

// Next returns the next complete message, or false when more bytes are
// needed. The returned slice borrows the internal buffer and is valid
// only until the next Feed or Next call.
//
// Garbage before a message (bad magic, impossible payload size) is
// skipped by scanning for the next magic occurrence; the skipped bytes
// and resync events are counted for the connection-level pervasive
// corruption decision.
func (f *Framer) Next() ([]byte, bool) {
	for {
		pending := f.buf[f.off:]
		if len(pending) < 4 {
			f.compact()
			return nil, false
		}
		if binary.LittleEndian.Uint32(pending) != Magic {
			f.resync(pending, 1)
			continue
		}
		if len(pending) < HeaderSize {
			f.compact()
			return nil, false
		}
		size := int(binary.LittleEndian.Uint32(pending[24:28]))
		if size > f.maxPayload {
			// Corrupt length under a valid-looking magic: skip the
			// magic word and rescan rather than waiting forever.
			f.resync(pending, 4)
			continue
		}
		total := HeaderSize + size
		if len(pending) < total {
			f.compact()
			return nil, false
		}
		f.off += total
		return pending[:total], true
	}
}

// Resyncs returns how many times the framer skipped garbage.
func (f *Framer) Resyncs() uint64 { return f.resyncs }

// GarbageBytes returns the total bytes discarded during resyncs.
func (f *Framer) GarbageBytes() uint64 { return f.garbageBytes }

// Buffered returns the number of bytes awaiting a complete message.
func (f *Framer) Buffered() int { return len(f.buf) - f.off }

func (f *Framer) resync(pending []byte, skip int) {
	idx := indexOfMagic(pending[skip:])
	if idx < 0 {
		// Keep the last 3 bytes: a magic word may straddle chunks.
		keep := len(pending) - 3
		if keep < skip {
			keep = skip
		}
		f.garbageBytes += uint64(keep)
		f.off += keep
	} else {
		f.garbageBytes += uint64(skip + idx)
		f.off += skip + idx
	}
	f.resyncs++
}

func (f *Framer) compact() {
	if f.off == 0 {
		return
	}
	n := copy(f.buf, f.buf[f.off:])
	f.buf = f.buf[:n]
	f.off = 0
}

var magicBytes = [4]byte{0xEF, 0xBE, 0xAD, 0xDE}

func indexOfMagic(p []byte) int {
outer:
	for i := 0; i+4 <= len(p); i++ {
		for j := 0; j < 4; j++ {
			if p[i+j] != magicBytes[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
