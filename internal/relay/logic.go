// Package relay implements the generic message relay engine.
//
// One engine implementation serves every domain: it owns the Unix
// socket accept loop, the broadcast hub and the per-connection task
// pair, and is parameterized by a Logic value carrying the
// domain-specific policy. Domain packages add no infrastructure code
// of their own.
package relay

import (
	"main/internal/protocol"
)

// ConnID uniquely identifies an accepted connection within a process.
type ConnID uint64

// Logic is the pluggable per-domain policy consumed by the engine.
// A Logic value is constructed once at relay startup and shared
// read-only across every connection task; implementations own the
// thread-safety of any internal state they keep.
type Logic interface {
	// Identity names the domain for logs and metrics.
	Identity() string

	// SocketPath is the Unix socket path this relay instance binds.
	SocketPath() string

	// ShouldForward decides whether a well-formed message is
	// broadcast. Called on every message in the hot path; must be
	// pure, side-effect free and fast.
	ShouldForward(h protocol.Header) bool

	// OnConnect is invoked once per accepted connection, off the
	// per-message path.
	OnConnect(id ConnID)
}

// Inspector is an optional Logic extension for domains that must see
// the payload before forwarding. Returning an error drops the message
// without terminating the connection.
type Inspector interface {
	Inspect(h protocol.Header, payload []byte) error
}
