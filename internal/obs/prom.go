package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts a Metrics snapshot for Prometheus scraping. The
// scrape reads atomic snapshots only; nothing here touches the
// per-message path.
type Collector struct {
	metrics *Metrics

	forwarded        *prometheus.Desc
	filtered         *prometheus.Desc
	backpressureDrop *prometheus.Desc
	kicked           *prometheus.Desc
	checksumSampled  *prometheus.Desc
	checksumFailed   *prometheus.Desc
	malformed        *prometheus.Desc
	resyncBytes      *prometheus.Desc
	connsTotal       *prometheus.Desc
	connsActive      *prometheus.Desc
	latencyAvg       *prometheus.Desc
	latencyMax       *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector labeled with the relay domain identity.
func NewCollector(m *Metrics, domain string) *Collector {
	labels := prometheus.Labels{"domain": domain}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("relay_"+name, help, nil, labels)
	}
	return &Collector{
		metrics:          m,
		forwarded:        desc("messages_forwarded_total", "Messages pushed onto the broadcast hub."),
		filtered:         desc("messages_filtered_total", "Messages dropped by the domain predicate."),
		backpressureDrop: desc("messages_backpressure_dropped_total", "Messages dropped for lagging consumers."),
		kicked:           desc("consumers_kicked_total", "Consumers disconnected for lagging."),
		checksumSampled:  desc("checksum_sampled_total", "Messages that underwent full CRC validation."),
		checksumFailed:   desc("checksum_failed_total", "Sampled messages with a CRC mismatch."),
		malformed:        desc("messages_malformed_total", "Messages rejected before filtering."),
		resyncBytes:      desc("resync_bytes_total", "Garbage bytes skipped while reframing streams."),
		connsTotal:       desc("connections_total", "Connections accepted since start."),
		connsActive:      desc("connections_active", "Currently live connections."),
		latencyAvg:       desc("forward_latency_avg_ns", "Average in-relay forwarding latency."),
		latencyMax:       desc("forward_latency_max_ns", "Maximum in-relay forwarding latency."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.forwarded
	ch <- c.filtered
	ch <- c.backpressureDrop
	ch <- c.kicked
	ch <- c.checksumSampled
	ch <- c.checksumFailed
	ch <- c.malformed
	ch <- c.resyncBytes
	ch <- c.connsTotal
	ch <- c.connsActive
	ch <- c.latencyAvg
	ch <- c.latencyMax
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.forwarded, s.Forwarded)
	counter(c.filtered, s.Filtered)
	counter(c.backpressureDrop, s.BackpressureDrop)
	counter(c.kicked, s.Kicked)
	counter(c.checksumSampled, s.ChecksumSampled)
	counter(c.checksumFailed, s.ChecksumFailed)
	counter(c.malformed, s.Malformed)
	counter(c.resyncBytes, s.ResyncBytes)
	counter(c.connsTotal, s.ConnectionsTotal)
	ch <- prometheus.MustNewConstMetric(c.connsActive, prometheus.GaugeValue, float64(s.ConnectionsActive))
	ch <- prometheus.MustNewConstMetric(c.latencyAvg, prometheus.GaugeValue, float64(s.ForwardLatency.Avg))
	ch <- prometheus.MustNewConstMetric(c.latencyMax, prometheus.GaugeValue, float64(s.ForwardLatency.Max))
}
