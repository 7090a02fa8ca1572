package domains

import (
	"main/internal/protocol"
	"main/internal/relay"
)

// Market is the market-data relay policy. The domain has a single
// trusted producer and enormous volume, so every well-formed message
// is forwarded without marker filtering.
type Market struct {
	path     string
	registry *consumerRegistry
}

var _ relay.Logic = (*Market)(nil)

// NewMarket builds the market-data policy bound to socketPath.
// An empty path resolves to the conventional location.
func NewMarket(socketPath string) *Market {
	if socketPath == "" {
		socketPath = DefaultSocketPath("", "market_data")
	}
	return &Market{path: socketPath, registry: newConsumerRegistry()}
}

// Identity implements relay.Logic.
func (m *Market) Identity() string { return "market_data" }

// SocketPath implements relay.Logic.
func (m *Market) SocketPath() string { return m.path }

// ShouldForward forwards everything regardless of marker.
func (m *Market) ShouldForward(protocol.Header) bool { return true }

// OnConnect implements relay.Logic.
func (m *Market) OnConnect(id relay.ConnID) { m.registry.add(id) }

// Consumers returns the diagnostic consumer registry size.
func (m *Market) Consumers() int { return m.registry.Count() }
