// Package domains provides the shipped relay policies: market data,
// signal and execution. Each one is pure policy; all infrastructure
// lives in the relay engine.
package domains

import (
	"path/filepath"
	"sync"
	"time"

	"main/internal/relay"
)

// DefaultSocketDir hosts the per-domain relay sockets.
const DefaultSocketDir = "/tmp/relay"

// Domain marker sub-ranges reserved per domain. Markers are part of
// the external protocol contract; relays enforce them so traffic
// cannot leak across domains sharing infrastructure.
const (
	MarketMarkerLow  = 1
	MarketMarkerHigh = 19

	SignalMarkerLow  = 20
	SignalMarkerHigh = 39

	ExecutionMarkerLow  = 40
	ExecutionMarkerHigh = 79
)

// DefaultSocketPath returns the conventional socket path for a domain
// identity under dir.
func DefaultSocketPath(dir, identity string) string {
	if dir == "" {
		dir = DefaultSocketDir
	}
	return filepath.Join(dir, identity+".sock")
}

// consumerRegistry tracks connected consumer IDs with their connect
// times. Diagnostics only: it is never consulted on the message path
// and has no bearing on forwarding.
type consumerRegistry struct {
	mu    sync.Mutex
	conns map[relay.ConnID]time.Time
}

func newConsumerRegistry() *consumerRegistry {
	return &consumerRegistry{conns: make(map[relay.ConnID]time.Time)}
}

func (r *consumerRegistry) add(id relay.ConnID) {
	r.mu.Lock()
	r.conns[id] = time.Now()
	r.mu.Unlock()
}

// Seen reports whether the registry recorded a connection and when.
func (r *consumerRegistry) Seen(id relay.ConnID) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.conns[id]
	return t, ok
}

// Count returns the number of recorded connections.
func (r *consumerRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
