// Package ops resolves runtime configuration for relay binaries: a
// JSON config file layered under RELAY_* environment overrides.
package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	yerrors "github.com/yanun0323/errors"

	"main/internal/relay"
	"main/pkg/exception"
)

// FileConfig mirrors the JSON config layout. Zero values fall back to
// engine defaults; ChecksumSampleRate below zero disables sampling.
type FileConfig struct {
	SocketDir          string `json:"socketDir"`
	SocketPath         string `json:"socketPath"`
	QueueCapacity      int    `json:"queueCapacity"`
	Overflow           string `json:"overflow"`
	ReadBufferSize     int    `json:"readBufferSize"`
	MaxPayload         int    `json:"maxPayload"`
	ChecksumSampleRate int64  `json:"checksumSampleRate"`
	StrictChecksum     bool   `json:"strictChecksum"`
	MaxGarbageBytes    uint64 `json:"maxGarbageBytes"`
	ShutdownGraceMs    int    `json:"shutdownGraceMs"`
	AuditDSN           string `json:"auditDsn"`
	MetricsAddr        string `json:"metricsAddr"`
	PyroscopeAddr      string `json:"pyroscopeAddr"`
}

// envConfig captures RELAY_* overrides applied on top of the file.
type envConfig struct {
	SocketDir          string  `env:"RELAY_SOCKET_DIR"`
	SocketPath         string  `env:"RELAY_SOCKET_PATH"`
	QueueCapacity      *int    `env:"RELAY_QUEUE_CAPACITY"`
	Overflow           string  `env:"RELAY_OVERFLOW"`
	ChecksumSampleRate *int64  `env:"RELAY_CHECKSUM_SAMPLE_RATE"`
	StrictChecksum     *bool   `env:"RELAY_STRICT_CHECKSUM"`
	ShutdownGraceMs    *int    `env:"RELAY_SHUTDOWN_GRACE_MS"`
	AuditDSN           string  `env:"RELAY_AUDIT_DSN"`
	MetricsAddr        string  `env:"RELAY_METRICS_ADDR"`
	PyroscopeAddr      string  `env:"RELAY_PYROSCOPE_ADDR"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	SocketDir     string
	Relay         relay.Config
	AuditDSN      string
	MetricsAddr   string
	PyroscopeAddr string
}

// Overflow policy names accepted in config.
const (
	OverflowNameDropOldest = "drop_oldest"
	OverflowNameKick       = "kick"
)

// Load reads the optional JSON config file and applies environment
// overrides. An empty path skips the file and resolves defaults plus
// environment.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, yerrors.Wrap(exception.ErrBadConfig, err.Error())
		}
	}

	var overrides envConfig
	if err := env.Parse(&overrides); err != nil {
		return Loaded{}, yerrors.Wrap(exception.ErrBadConfig, err.Error())
	}
	apply(&cfg, overrides)

	return resolve(cfg)
}

func apply(cfg *FileConfig, o envConfig) {
	if o.SocketDir != "" {
		cfg.SocketDir = o.SocketDir
	}
	if o.SocketPath != "" {
		cfg.SocketPath = o.SocketPath
	}
	if o.QueueCapacity != nil {
		cfg.QueueCapacity = *o.QueueCapacity
	}
	if o.Overflow != "" {
		cfg.Overflow = o.Overflow
	}
	if o.ChecksumSampleRate != nil {
		cfg.ChecksumSampleRate = *o.ChecksumSampleRate
	}
	if o.StrictChecksum != nil {
		cfg.StrictChecksum = *o.StrictChecksum
	}
	if o.ShutdownGraceMs != nil {
		cfg.ShutdownGraceMs = *o.ShutdownGraceMs
	}
	if o.AuditDSN != "" {
		cfg.AuditDSN = o.AuditDSN
	}
	if o.MetricsAddr != "" {
		cfg.MetricsAddr = o.MetricsAddr
	}
	if o.PyroscopeAddr != "" {
		cfg.PyroscopeAddr = o.PyroscopeAddr
	}
}

func resolve(cfg FileConfig) (Loaded, error) {
	overflow := relay.OverflowDropOldest
	switch cfg.Overflow {
	case "", OverflowNameDropOldest:
	case OverflowNameKick:
		overflow = relay.OverflowKick
	default:
		return Loaded{}, yerrors.Wrap(exception.ErrBadConfig, "unknown overflow policy: "+cfg.Overflow)
	}

	return Loaded{
		SocketDir: cfg.SocketDir,
		Relay: relay.Config{
			SocketPath:         cfg.SocketPath,
			QueueCapacity:      cfg.QueueCapacity,
			Overflow:           overflow,
			ReadBufferSize:     cfg.ReadBufferSize,
			MaxPayload:         cfg.MaxPayload,
			ChecksumSampleRate: cfg.ChecksumSampleRate,
			StrictChecksum:     cfg.StrictChecksum,
			MaxGarbageBytes:    cfg.MaxGarbageBytes,
			ShutdownGrace:      time.Duration(cfg.ShutdownGraceMs) * time.Millisecond,
		},
		AuditDSN:      cfg.AuditDSN,
		MetricsAddr:   cfg.MetricsAddr,
		PyroscopeAddr: cfg.PyroscopeAddr,
	}, nil
}
