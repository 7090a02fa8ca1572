package obs

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.IncForwarded()
	m.IncForwarded()
	m.IncFiltered()
	m.IncBackpressureDrop()
	m.IncKicked()
	m.IncChecksumSampled()
	m.IncChecksumFailed()
	m.IncMalformed()
	m.AddMalformed(2)
	m.AddResyncBytes(77)
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()

	s := m.Snapshot()
	assert.Equal(t, uint64(2), s.Forwarded)
	assert.Equal(t, uint64(1), s.Filtered)
	assert.Equal(t, uint64(1), s.BackpressureDrop)
	assert.Equal(t, uint64(1), s.Kicked)
	assert.Equal(t, uint64(1), s.ChecksumSampled)
	assert.Equal(t, uint64(1), s.ChecksumFailed)
	assert.Equal(t, uint64(3), s.Malformed)
	assert.Equal(t, uint64(77), s.ResyncBytes)
	assert.Equal(t, uint64(2), s.ConnectionsTotal)
	assert.Equal(t, int64(1), s.ConnectionsActive)
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.IncForwarded()
	m.AddMalformed(1)
	m.AddResyncBytes(1)
	m.ConnOpened()
	m.ObserveForward(time.Microsecond)
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestLatencyStatsMinMaxAvg(t *testing.T) {
	m := NewMetrics()
	m.ObserveForward(10 * time.Microsecond)
	m.ObserveForward(30 * time.Microsecond)
	m.ObserveForward(20 * time.Microsecond)

	l := m.Snapshot().ForwardLatency
	assert.Equal(t, uint64(3), l.Count)
	assert.Equal(t, 10*time.Microsecond, l.Min)
	assert.Equal(t, 30*time.Microsecond, l.Max)
	assert.Equal(t, 20*time.Microsecond, l.Avg)
}

func TestLatencyStatsConcurrent(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 1; j <= 1000; j++ {
				m.ObserveForward(time.Duration(j) * time.Nanosecond)
			}
		}()
	}
	wg.Wait()

	l := m.Snapshot().ForwardLatency
	assert.Equal(t, uint64(8000), l.Count)
	assert.Equal(t, time.Nanosecond, l.Min)
	assert.Equal(t, 1000*time.Nanosecond, l.Max)
}

func TestIDGeneratorMonotonic(t *testing.T) {
	g := NewIDGenerator(0)
	assert.Equal(t, uint64(1), g.Next())
	assert.Equal(t, uint64(2), g.Next())

	g2 := NewIDGenerator(100)
	assert.Equal(t, uint64(101), g2.Next())
}

func TestCollectorExposesSnapshot(t *testing.T) {
	m := NewMetrics()
	m.IncForwarded()
	m.IncForwarded()
	m.IncForwarded()
	m.ConnOpened()

	c := NewCollector(m, "market_data")
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	expected := strings.NewReader(`
# HELP relay_messages_forwarded_total Messages pushed onto the broadcast hub.
# TYPE relay_messages_forwarded_total counter
relay_messages_forwarded_total{domain="market_data"} 3
# HELP relay_connections_active Currently live connections.
# TYPE relay_connections_active gauge
relay_connections_active{domain="market_data"} 1
`)
	require.NoError(t, testutil.CollectAndCompare(c, expected,
		"relay_messages_forwarded_total", "relay_connections_active"))
	assert.Equal(t, 12, testutil.CollectAndCount(c))
}
