package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects lightweight relay counters and latency stats.
// Every per-message update is a single atomic add so the hot path
// never takes a lock.
type Metrics struct {
	forwarded        uint64
	filtered         uint64
	backpressureDrop uint64
	kicked           uint64
	checksumSampled  uint64
	checksumFailed   uint64
	malformed        uint64
	resyncBytes      uint64

	connectionsTotal  uint64
	connectionsActive int64

	forwardLatency LatencyStats
}

// Snapshot is a point-in-time view of the relay metrics.
type Snapshot struct {
	Forwarded        uint64
	Filtered         uint64
	BackpressureDrop uint64
	Kicked           uint64
	ChecksumSampled  uint64
	ChecksumFailed   uint64
	Malformed        uint64
	ResyncBytes      uint64

	ConnectionsTotal  uint64
	ConnectionsActive int64

	ForwardLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncForwarded records a message pushed onto the broadcast hub.
func (m *Metrics) IncForwarded() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.forwarded, 1)
}

// IncFiltered records a message dropped by the domain predicate.
// These are intentional drops, not failures.
func (m *Metrics) IncFiltered() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.filtered, 1)
}

// IncBackpressureDrop records a message dropped for one lagging consumer.
func (m *Metrics) IncBackpressureDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.backpressureDrop, 1)
}

// IncKicked records a consumer disconnected for lagging.
func (m *Metrics) IncKicked() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.kicked, 1)
}

// IncChecksumSampled records a message that underwent full CRC validation.
func (m *Metrics) IncChecksumSampled() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.checksumSampled, 1)
}

// IncChecksumFailed records a sampled message whose CRC did not match.
func (m *Metrics) IncChecksumFailed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.checksumFailed, 1)
}

// IncMalformed records a message rejected before filtering.
func (m *Metrics) IncMalformed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.malformed, 1)
}

// AddMalformed records n messages rejected before filtering. One read
// chunk can contain several garbage runs, so resync events are reported
// as a delta rather than one at a time.
func (m *Metrics) AddMalformed(n uint64) {
	if m == nil || n == 0 {
		return
	}
	atomic.AddUint64(&m.malformed, n)
}

// AddResyncBytes records garbage bytes skipped while reframing a stream.
func (m *Metrics) AddResyncBytes(n uint64) {
	if m == nil || n == 0 {
		return
	}
	atomic.AddUint64(&m.resyncBytes, n)
}

// ConnOpened records an accepted connection.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.connectionsTotal, 1)
	atomic.AddInt64(&m.connectionsActive, 1)
}

// ConnClosed records a finished connection.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.connectionsActive, -1)
}

// ObserveForward measures one message's in-relay forwarding latency.
func (m *Metrics) ObserveForward(d time.Duration) {
	if m == nil {
		return
	}
	m.forwardLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Forwarded:         atomic.LoadUint64(&m.forwarded),
		Filtered:          atomic.LoadUint64(&m.filtered),
		BackpressureDrop:  atomic.LoadUint64(&m.backpressureDrop),
		Kicked:            atomic.LoadUint64(&m.kicked),
		ChecksumSampled:   atomic.LoadUint64(&m.checksumSampled),
		ChecksumFailed:    atomic.LoadUint64(&m.checksumFailed),
		Malformed:         atomic.LoadUint64(&m.malformed),
		ResyncBytes:       atomic.LoadUint64(&m.resyncBytes),
		ConnectionsTotal:  atomic.LoadUint64(&m.connectionsTotal),
		ConnectionsActive: atomic.LoadInt64(&m.connectionsActive),
		ForwardLatency:    m.forwardLatency.Snapshot(),
	}
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
