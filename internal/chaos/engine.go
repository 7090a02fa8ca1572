// Package chaos mutates captured relay streams to exercise the failure
// paths a healthy producer never triggers: dropped and duplicated
// messages, reordering, payload corruption and raw garbage between
// frames.
package chaos

import (
	"math/rand"
	"time"

	yerrors "github.com/yanun0323/errors"

	"main/pkg/exception"
)

// Config controls chaos injection. All rates are probabilities per
// message in [0, 1].
type Config struct {
	// Seed makes a run reproducible. 0 seeds from the clock.
	Seed int64

	// DropRate removes messages entirely.
	DropRate float64

	// DuplicateRate emits a message twice.
	DuplicateRate float64

	// CorruptRate flips one random bit in the message. Header
	// corruption defeats framing, payload corruption defeats the
	// checksum; both are interesting to a relay.
	CorruptRate float64

	// GarbageRate prepends a burst of random non-message bytes,
	// forcing the receiver to resynchronize.
	GarbageRate float64

	// GarbageMaxLen bounds an injected garbage burst.
	GarbageMaxLen int

	// ReorderWindow > 1 buffers that many messages and releases them
	// in random order.
	ReorderWindow int
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	for _, rate := range []float64{c.DropRate, c.DuplicateRate, c.CorruptRate, c.GarbageRate} {
		if rate < 0 || rate > 1 {
			return yerrors.Wrap(exception.ErrBadConfig, "chaos: rates must be between 0 and 1")
		}
	}
	if c.ReorderWindow <= 0 {
		return yerrors.Wrap(exception.ErrBadConfig, "chaos: reorderWindow must be >= 1")
	}
	if c.GarbageMaxLen < 0 {
		return yerrors.Wrap(exception.ErrBadConfig, "chaos: garbageMaxLen must be >= 0")
	}
	return nil
}

// Engine applies chaos rules to a stream of framed messages.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending [][]byte
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if cfg.GarbageMaxLen == 0 {
		cfg.GarbageMaxLen = 256
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Process applies chaos to one message and returns the byte chunks to
// emit, in order. A chunk is not necessarily a valid message: it may
// be corrupted or pure garbage.
func (e *Engine) Process(msg []byte) [][]byte {
	if e == nil {
		return [][]byte{msg}
	}
	if e.shouldHit(e.cfg.DropRate) {
		return nil
	}
	if e.cfg.ReorderWindow <= 1 {
		return e.emit(msg)
	}
	e.pending = append(e.pending, msg)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	idx := e.rng.Intn(len(e.pending))
	out := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return e.emit(out)
}

// Flush releases any buffered messages after processing completes.
func (e *Engine) Flush() [][]byte {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	var out [][]byte
	for len(e.pending) > 0 {
		idx := e.rng.Intn(len(e.pending))
		msg := e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		out = append(out, e.emit(msg)...)
	}
	return out
}

func (e *Engine) emit(msg []byte) [][]byte {
	var out [][]byte
	if e.shouldHit(e.cfg.GarbageRate) {
		out = append(out, e.garbage())
	}
	msg = e.maybeCorrupt(msg)
	out = append(out, msg)
	if e.shouldHit(e.cfg.DuplicateRate) {
		out = append(out, msg)
	}
	return out
}

func (e *Engine) maybeCorrupt(msg []byte) []byte {
	if len(msg) == 0 || !e.shouldHit(e.cfg.CorruptRate) {
		return msg
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	cp[e.rng.Intn(len(cp))] ^= 1 << e.rng.Intn(8)
	return cp
}

func (e *Engine) garbage() []byte {
	n := 1 + e.rng.Intn(e.cfg.GarbageMaxLen)
	buf := make([]byte, n)
	e.rng.Read(buf)
	return buf
}

func (e *Engine) shouldHit(rate float64) bool {
	return rate > 0 && e.rng.Float64() < rate
}
