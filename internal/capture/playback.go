package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	yerrors "github.com/yanun0323/errors"

	"main/pkg/exception"
)

// PlaybackConfig controls capture playback.
type PlaybackConfig struct {
	Dir             string
	FilePrefix      string
	Speed           float64
	DisableChecksum bool
	MaxMessageSize  int
}

// Clock allows deterministic playback control in tests.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Playback replays captured messages in segment order.
type Playback struct {
	cfg   PlaybackConfig
	clock Clock
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = defaultFilePrefix
	}
	if cfg.Dir == "" {
		return nil, yerrors.Wrap(exception.ErrBadConfig, "playback: Dir is empty")
	}
	if cfg.Speed < 0 {
		return nil, yerrors.Wrap(exception.ErrBadConfig, "playback: Speed must be >= 0")
	}
	if cfg.MaxMessageSize < 0 {
		return nil, yerrors.Wrap(exception.ErrBadConfig, "playback: MaxMessageSize must be >= 0")
	}
	return &Playback{cfg: cfg, clock: realClock{}}, nil
}

// WithClock swaps the clock implementation.
func (p *Playback) WithClock(clock Clock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Run replays captured messages and calls the handler for each one.
// With Speed > 0, gaps between capture timestamps are reproduced
// scaled by Speed (1 = original pacing); Speed 0 replays flat out.
func (p *Playback) Run(ctx context.Context, handler func(RecordHeader, []byte) error) error {
	if handler == nil {
		return errors.New("playback handler is nil")
	}
	files, err := p.collectFiles()
	if err != nil {
		return err
	}

	var prevTS uint64
	for _, path := range files {
		if err := p.playFile(ctx, path, handler, &prevTS); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) collectFiles() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, err
	}
	prefix := p.cfg.FilePrefix + "-"
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".cap") {
			continue
		}
		files = append(files, filepath.Join(p.cfg.Dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func (p *Playback) playFile(ctx context.Context, path string, handler func(RecordHeader, []byte) error, prevTS *uint64) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxMessageSize:  p.cfg.MaxMessageSize,
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		header, msg, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read %s: %w", path, err)
		}

		if err := p.pace(ctx, header, prevTS); err != nil {
			return err
		}
		if err := handler(header, msg); err != nil {
			return err
		}
	}
}

func (p *Playback) pace(ctx context.Context, header RecordHeader, prevTS *uint64) error {
	if p.cfg.Speed <= 0 || header.CapturedAt == 0 {
		return nil
	}
	if *prevTS > 0 && header.CapturedAt > *prevTS {
		delta := header.CapturedAt - *prevTS
		sleep := time.Duration(float64(delta) / p.cfg.Speed)
		if err := p.clock.Sleep(ctx, sleep); err != nil {
			return err
		}
	}
	*prevTS = header.CapturedAt
	return nil
}
