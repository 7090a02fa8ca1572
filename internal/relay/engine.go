package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	yerrors "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/obs"
	"main/pkg/exception"
	"main/pkg/uds"
)

// Config tunes one relay instance. The zero value resolves to
// production defaults via withDefaults.
type Config struct {
	// SocketPath overrides the logic's socket path when non-empty.
	SocketPath string

	// QueueCapacity bounds each consumer's pending-message queue.
	QueueCapacity int

	// Overflow picks the lagging-consumer policy.
	Overflow OverflowPolicy

	// ReadBufferSize is the per-connection read chunk size.
	ReadBufferSize int

	// MaxPayload caps a header's declared payload size.
	MaxPayload int

	// ChecksumSampleRate validates one message in N. 0 resolves to
	// the default, 1 validates everything, negative disables
	// sampling entirely.
	ChecksumSampleRate int64

	// StrictChecksum drops sampled messages that fail validation
	// instead of only recording the failure.
	StrictChecksum bool

	// MaxGarbageBytes is the per-connection unframeable-byte budget
	// before the connection is dropped as pervasively corrupt.
	MaxGarbageBytes uint64

	// ShutdownGrace bounds how long live connections may drain after
	// the accept loop stops.
	ShutdownGrace time.Duration
}

const (
	defaultReadBufferSize  = 64 << 10
	defaultMaxGarbage      = 64 << 10
	defaultShutdownGrace   = 2 * time.Second
	defaultChecksumEnabled = DefaultChecksumSampleRate
)

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = defaultReadBufferSize
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = 1 << 20
	}
	if c.ChecksumSampleRate == 0 {
		c.ChecksumSampleRate = defaultChecksumEnabled
	}
	if c.MaxGarbageBytes == 0 {
		c.MaxGarbageBytes = defaultMaxGarbage
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	return c
}

// Relay is the generic engine. It owns the listener, the broadcast
// hub and connection supervision; all domain behavior comes from the
// Logic it was constructed with.
type Relay struct {
	logic     Logic
	inspector Inspector
	cfg       Config
	metrics   *obs.Metrics

	hub      *Hub
	server   *uds.Server
	ids      *obs.IDGenerator
	sampler  *sampler
	registry sync.Map // ConnID -> *connEntry

	wg       sync.WaitGroup
	started  atomic.Bool
	stopped  chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

type connEntry struct {
	conn          *net.UnixConn
	establishedAt time.Time
}

// New builds a relay around the given domain logic.
func New(logic Logic, cfg Config, metrics *obs.Metrics) (*Relay, error) {
	if logic == nil {
		return nil, exception.ErrNilLogic
	}
	cfg = cfg.withDefaults()
	if cfg.SocketPath == "" {
		cfg.SocketPath = logic.SocketPath()
	}
	if cfg.SocketPath == "" {
		return nil, exception.ErrBadConfig
	}

	sampleRate := uint64(0)
	if cfg.ChecksumSampleRate > 0 {
		sampleRate = uint64(cfg.ChecksumSampleRate)
	}

	inspector, _ := logic.(Inspector)
	return &Relay{
		logic:     logic,
		inspector: inspector,
		cfg:       cfg,
		metrics:   metrics,
		ids:       obs.NewIDGenerator(0),
		sampler:   newSampler(sampleRate),
		stopped:   make(chan struct{}),
		quit:      make(chan struct{}),
	}, nil
}

// Path returns the socket path this relay binds.
func (r *Relay) Path() string { return r.cfg.SocketPath }

// Metrics returns the relay's metrics container.
func (r *Relay) Metrics() *obs.Metrics { return r.metrics }

// Start binds the socket and runs the accept loop until ctx is
// cancelled or Shutdown is called. Bind failures are fatal and
// returned immediately; everything after that is per-connection and
// recoverable.
func (r *Relay) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return exception.ErrAlreadyStarted
	}

	server, err := uds.NewServer(r.cfg.SocketPath)
	if err != nil {
		close(r.stopped)
		return err
	}
	if err := server.Listen(); err != nil {
		close(r.stopped)
		return yerrors.Wrap(exception.ErrBindFailed, err.Error())
	}
	r.server = server
	r.hub = NewHub(r.cfg.QueueCapacity, r.cfg.Overflow, r.metrics)

	go func() {
		select {
		case <-ctx.Done():
		case <-r.quit:
		}
		// Stop admitting new connections first.
		_ = server.Close()
	}()

	logs.Infof("relay[%s] listening on %s", r.logic.Identity(), r.cfg.SocketPath)

	for {
		conn, err := server.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				// Listener closed by cancellation or Shutdown.
				break
			}
			logs.Errorf("relay[%s] accept: %v", r.logic.Identity(), err)
			continue
		}
		id := ConnID(r.ids.Next())
		logs.Infof("relay[%s] connection %d established", r.logic.Identity(), id)
		r.wg.Add(1)
		go r.handleConn(conn, id)
	}

	r.drain()
	close(r.stopped)
	logs.Infof("relay[%s] stopped", r.logic.Identity())
	return nil
}

// drain gives in-flight connections a bounded grace period, then
// force-closes whatever remains.
func (r *Relay) drain() {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.cfg.ShutdownGrace):
		logs.Warnf("relay[%s] grace period elapsed, force closing connections",
			r.logic.Identity())
		r.registry.Range(func(_, v any) bool {
			_ = v.(*connEntry).conn.Close()
			return true
		})
		r.hub.Close()
		<-done
	}
	r.hub.Close()
}

// Shutdown stops the relay and waits for it to finish draining, or
// for ctx to expire. Safe to call multiple times and before Start.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.quitOnce.Do(func() { close(r.quit) })
	if !r.started.Load() {
		return nil
	}
	select {
	case <-r.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectionCount reports live connections, for diagnostics.
func (r *Relay) ConnectionCount() int {
	n := 0
	r.registry.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
