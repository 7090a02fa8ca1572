package capture

import (
	"time"

	yerrors "github.com/yanun0323/errors"

	"main/pkg/exception"
)

const (
	defaultSegmentMaxBytes int64 = 1 << 30
	defaultQueueSize             = 4096
	defaultBufferSize            = 256 * 1024
	defaultFilePrefix            = "cap"
)

var defaultSegmentMaxDuration = 5 * time.Minute

// Config controls the capture writer.
type Config struct {
	Dir                string
	SegmentMaxBytes    int64
	SegmentMaxDuration time.Duration
	QueueSize          int
	BufferSize         int
	FilePrefix         string
	FlushInterval      time.Duration
	SyncInterval       time.Duration
}

// DefaultConfig returns a baseline writer configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		SegmentMaxBytes:    defaultSegmentMaxBytes,
		SegmentMaxDuration: defaultSegmentMaxDuration,
		QueueSize:          defaultQueueSize,
		BufferSize:         defaultBufferSize,
		FilePrefix:         defaultFilePrefix,
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks whether the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.Dir == "":
		return yerrors.Wrap(exception.ErrBadConfig, "capture: Dir is empty")
	case c.SegmentMaxBytes <= 0:
		return yerrors.Wrap(exception.ErrBadConfig, "capture: SegmentMaxBytes must be > 0")
	case c.QueueSize <= 0:
		return yerrors.Wrap(exception.ErrBadConfig, "capture: QueueSize must be > 0")
	case c.BufferSize <= 0:
		return yerrors.Wrap(exception.ErrBadConfig, "capture: BufferSize must be > 0")
	case c.FlushInterval < 0:
		return yerrors.Wrap(exception.ErrBadConfig, "capture: FlushInterval must be >= 0")
	case c.SyncInterval < 0:
		return yerrors.Wrap(exception.ErrBadConfig, "capture: SyncInterval must be >= 0")
	}
	return nil
}
