package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrQueueFull      = errors.New("capture queue full")
	ErrClosed         = errors.New("capture writer closed")
	ErrNotStarted     = errors.New("capture writer not started")
	ErrAlreadyStarted = errors.New("capture writer already started")
)

// maxMessageLen bounds a single captured message. The relay frames
// messages well below this; the cap only guards the file format.
const maxMessageLen = 1 << 26

// Writer appends captured messages to rotating segment files. Append
// never blocks: messages are staged on a bounded queue drained by a
// single writer goroutine, so capture can sit on the relay consumer
// path without stalling it.
type Writer struct {
	cfg Config
	ch  chan captureRequest
	wg  sync.WaitGroup
	err atomic.Value
	seq atomic.Uint32

	started atomic.Bool
	closed  atomic.Bool
}

type captureRequest struct {
	capturedAt uint64
	msg        []byte
}

// NewWriter creates a capture writer and ensures the target directory
// exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan captureRequest, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer and flushes buffered data.
func (w *Writer) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// TryAppend enqueues one complete framed message without blocking.
// The message is copied; the caller may reuse its buffer.
func (w *Writer) TryAppend(msg []byte) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if !w.started.Load() {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if len(msg) > maxMessageLen {
		return ErrMessageTooLarge
	}

	cp := make([]byte, len(msg))
	copy(cp, msg)
	req := captureRequest{
		capturedAt: uint64(time.Now().UnixNano()),
		msg:        cp,
	}
	select {
	case w.ch <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	var (
		seg         *segmentWriter
		segID       uint64
		headerBuf   = make([]byte, recordHeaderSize)
		checksumBuf [recordChecksumSize]byte
		flushC      <-chan time.Time
		syncC       <-chan time.Time
	)

	if w.cfg.FlushInterval > 0 {
		t := time.NewTicker(w.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if w.cfg.SyncInterval > 0 {
		t := time.NewTicker(w.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}

	defer func() {
		if err := closeSegment(seg); err != nil && w.Err() == nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drainNonBlocking(&seg, &segID, headerBuf, &checksumBuf)
			return
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeRecord(&seg, &segID, headerBuf, &checksumBuf, req); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if seg != nil {
				if err := seg.buf.Flush(); err != nil {
					w.setErr(err)
					return
				}
			}
		case <-syncC:
			if seg != nil {
				if err := seg.buf.Flush(); err != nil {
					w.setErr(err)
					return
				}
				if err := seg.file.Sync(); err != nil {
					w.setErr(err)
					return
				}
			}
		}
	}
}

func (w *Writer) drainNonBlocking(seg **segmentWriter, segID *uint64, headerBuf []byte, checksumBuf *[recordChecksumSize]byte) {
	for {
		select {
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeRecord(seg, segID, headerBuf, checksumBuf, req); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) writeRecord(seg **segmentWriter, segID *uint64, headerBuf []byte, checksumBuf *[recordChecksumSize]byte, req captureRequest) error {
	now := time.Now().UTC()
	recordSize := int64(recordHeaderSize + len(req.msg) + recordChecksumSize)
	if w.shouldRotate(*seg, now, recordSize) {
		if err := closeSegment(*seg); err != nil {
			return err
		}
		opened, err := w.openSegment(segID, now)
		if err != nil {
			return err
		}
		*seg = opened
	}

	header := RecordHeader{CapturedAt: req.capturedAt, Seq: w.seq.Add(1)}
	encodeRecordHeader(headerBuf, header, len(req.msg))
	binary.LittleEndian.PutUint32(checksumBuf[:], recordChecksum(headerBuf, req.msg))

	if _, err := (*seg).buf.Write(headerBuf); err != nil {
		return err
	}
	if _, err := (*seg).buf.Write(req.msg); err != nil {
		return err
	}
	if _, err := (*seg).buf.Write(checksumBuf[:]); err != nil {
		return err
	}

	(*seg).size += recordSize
	return nil
}

func (w *Writer) shouldRotate(seg *segmentWriter, now time.Time, nextSize int64) bool {
	if seg == nil {
		return true
	}
	if w.cfg.SegmentMaxBytes > 0 && seg.size+nextSize > w.cfg.SegmentMaxBytes {
		return true
	}
	if w.cfg.SegmentMaxDuration > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentMaxDuration {
		return true
	}
	return false
}

func (w *Writer) openSegment(segID *uint64, now time.Time) (*segmentWriter, error) {
	ts := now.Format("20060102-150405")
	for {
		*segID++
		name := fmt.Sprintf("%s-%s-%06d.cap", w.cfg.FilePrefix, ts, *segID)
		path := filepath.Join(w.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return nil, err
		}
		return &segmentWriter{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func closeSegment(seg *segmentWriter) error {
	if seg == nil {
		return nil
	}
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return err
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return err
	}
	return seg.file.Close()
}

func (w *Writer) setErr(err error) {
	if err == nil || w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}

type segmentWriter struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}
