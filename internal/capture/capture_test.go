package capture

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/protocol"
)

func framedMessage(seq uint64) []byte {
	return protocol.AppendMessage(nil, protocol.HeaderFields{
		Domain:   25,
		Sequence: seq,
	}, []byte{byte(seq), byte(seq >> 8)})
}

func writeCapture(t *testing.T, dir string, msgs ...[]byte) {
	t.Helper()
	w, err := NewWriter(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	for _, msg := range msgs {
		require.NoError(t, w.TryAppend(msg))
	}
	require.NoError(t, w.Close())
}

func TestWriteThenReadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	msgs := [][]byte{framedMessage(1), framedMessage(2), framedMessage(3)}
	writeCapture(t, dir, msgs...)

	files, err := filepath.Glob(filepath.Join(dir, "cap-*.cap"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	r := NewReader(f, ReaderOptions{})
	for i, want := range msgs {
		rec, msg, err := r.Next()
		require.NoError(t, err, "record %d", i)
		assert.Equal(t, uint32(i+1), rec.Seq)
		assert.NotZero(t, rec.CapturedAt)
		assert.Equal(t, want, msg)
	}
	_, _, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, framedMessage(1))

	files, err := filepath.Glob(filepath.Join(dir, "cap-*.cap"))
	require.NoError(t, err)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)

	// Flip one message byte; the record checksum must catch it.
	data[recordHeaderSize] ^= 0x01
	r := NewReader(bytes.NewReader(data), ReaderOptions{})
	_, _, err = r.Next()
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	// The same read passes with validation disabled.
	r = NewReader(bytes.NewReader(data), ReaderOptions{DisableChecksum: true})
	_, _, err = r.Next()
	assert.NoError(t, err)
}

func TestReaderRejectsBadMagic(t *testing.T) {
	data := make([]byte, recordHeaderSize)
	copy(data, []byte("NOPE"))
	r := NewReader(bytes.NewReader(data), ReaderOptions{})
	_, _, err := r.Next()
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestWriterLifecycleErrors(t *testing.T) {
	w, err := NewWriter(DefaultConfig(t.TempDir()))
	require.NoError(t, err)

	assert.ErrorIs(t, w.TryAppend(framedMessage(1)), ErrNotStarted)

	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.TryAppend(framedMessage(1)), ErrClosed)
	// Close is idempotent.
	assert.NoError(t, w.Close())
}

func TestWriterRotatesSegments(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.SegmentMaxBytes = 64
	w, err := NewWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, w.TryAppend(framedMessage(i)))
	}
	require.NoError(t, w.Close())

	files, err := filepath.Glob(filepath.Join(cfg.Dir, "cap-*.cap"))
	require.NoError(t, err)
	assert.Greater(t, len(files), 1)
}

func TestPlaybackReplaysInOrder(t *testing.T) {
	dir := t.TempDir()
	msgs := [][]byte{framedMessage(1), framedMessage(2), framedMessage(3)}
	writeCapture(t, dir, msgs...)

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)

	var got [][]byte
	err = pb.Run(context.Background(), func(_ RecordHeader, msg []byte) error {
		got = append(got, append([]byte(nil), msg...))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, msgs, got)
}

type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func TestPlaybackPacesByCaptureGap(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.TryAppend(framedMessage(1)))
	time.Sleep(5 * time.Millisecond) // measurable capture gap
	require.NoError(t, w.TryAppend(framedMessage(2)))
	require.NoError(t, w.Close())

	pb, err := NewPlayback(PlaybackConfig{Dir: dir, Speed: 1})
	require.NoError(t, err)
	clock := &fakeClock{}
	pb.WithClock(clock)

	count := 0
	require.NoError(t, pb.Run(context.Background(), func(RecordHeader, []byte) error {
		count++
		return nil
	}))
	assert.Equal(t, 2, count)
	// No sleep before the first record, one gap after.
	assert.Len(t, clock.slept, 1)
}

func TestPlaybackConfigValidation(t *testing.T) {
	_, err := NewPlayback(PlaybackConfig{})
	assert.Error(t, err)
	_, err = NewPlayback(PlaybackConfig{Dir: "x", Speed: -1})
	assert.Error(t, err)
}
