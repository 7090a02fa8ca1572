package domains

import (
	"main/internal/protocol"
	"main/internal/relay"
)

// Signal is the signal relay policy. Only messages whose domain
// marker falls in the reserved signal sub-range are forwarded;
// everything else is silently dropped. The range check is what keeps
// cross-domain traffic from leaking when relay instances share
// infrastructure.
type Signal struct {
	path     string
	registry *consumerRegistry
}

var _ relay.Logic = (*Signal)(nil)

// NewSignal builds the signal policy bound to socketPath.
// An empty path resolves to the conventional location.
func NewSignal(socketPath string) *Signal {
	if socketPath == "" {
		socketPath = DefaultSocketPath("", "signals")
	}
	return &Signal{path: socketPath, registry: newConsumerRegistry()}
}

// Identity implements relay.Logic.
func (s *Signal) Identity() string { return "signal" }

// SocketPath implements relay.Logic.
func (s *Signal) SocketPath() string { return s.path }

// ShouldForward accepts markers in [SignalMarkerLow, SignalMarkerHigh].
func (s *Signal) ShouldForward(h protocol.Header) bool {
	d := h.Domain()
	return d >= SignalMarkerLow && d <= SignalMarkerHigh
}

// OnConnect implements relay.Logic.
func (s *Signal) OnConnect(id relay.ConnID) { s.registry.add(id) }

// Consumers returns the diagnostic consumer registry size.
func (s *Signal) Consumers() int { return s.registry.Count() }
