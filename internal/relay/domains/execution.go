package domains

import (
	"main/internal/protocol"
	"main/internal/relay"
)

// AuditSink receives every message the execution relay accepts.
// Implementations must not block; the relay hot path calls Record
// inline.
type AuditSink interface {
	Record(h protocol.HeaderFields, payload []byte)
}

// Execution is the execution relay policy. It carries order and
// execution-intent traffic, so on top of the marker range check every
// payload must be structurally valid TLV before it reaches consumers,
// and accepted messages can feed an audit trail.
type Execution struct {
	path     string
	registry *consumerRegistry
	sink     AuditSink
}

var (
	_ relay.Logic     = (*Execution)(nil)
	_ relay.Inspector = (*Execution)(nil)
)

// NewExecution builds the execution policy bound to socketPath. sink
// may be nil to disable audit recording.
func NewExecution(socketPath string, sink AuditSink) *Execution {
	if socketPath == "" {
		socketPath = DefaultSocketPath("", "execution")
	}
	return &Execution{path: socketPath, registry: newConsumerRegistry(), sink: sink}
}

// Identity implements relay.Logic.
func (e *Execution) Identity() string { return "execution" }

// SocketPath implements relay.Logic.
func (e *Execution) SocketPath() string { return e.path }

// ShouldForward accepts markers in [ExecutionMarkerLow, ExecutionMarkerHigh].
func (e *Execution) ShouldForward(h protocol.Header) bool {
	d := h.Domain()
	return d >= ExecutionMarkerLow && d <= ExecutionMarkerHigh
}

// Inspect rejects messages whose TLV payload is malformed. A
// well-headed but structurally broken message must not reach
// execution consumers.
func (e *Execution) Inspect(h protocol.Header, payload []byte) error {
	if err := protocol.ValidateTLV(payload); err != nil {
		return err
	}
	if e.sink != nil {
		e.sink.Record(h.Fields(), payload)
	}
	return nil
}

// OnConnect implements relay.Logic.
func (e *Execution) OnConnect(id relay.ConnID) { e.registry.add(id) }

// Consumers returns the diagnostic consumer registry size.
func (e *Execution) Consumers() int { return e.registry.Count() }
