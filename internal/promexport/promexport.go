// Package promexport adapts one or more sessions' Metrics into a
// Prometheus Collector, for hosts that already scrape a /metrics
// endpoint and want BCP's counters alongside everything else rather than
// polling MetricsSnapshot out-of-band.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/realkv/lab-bcp"
)

var frameKindLabels = [8]string{
	"data_complete", "data_start", "data_middle", "data_end",
	"data_ack", "data_nack", "sync_req", "sync_ack",
}

// SnapshotSource is the subset of *bcp.Session a Collector needs.
type SnapshotSource interface {
	MetricsSnapshot() bcp.MetricsSnapshot
	Tag() string
}

// Collector implements prometheus.Collector over one or more sessions.
type Collector struct {
	sources []SnapshotSource

	framesSent        *prometheus.Desc
	framesReceived    *prometheus.Desc
	bytesSent         *prometheus.Desc
	bytesAcked        *prometheus.Desc
	retransmits       *prometheus.Desc
	protocolDrops     *prometheus.Desc
	handshakeAttempts *prometheus.Desc
	handshakeTimeouts *prometheus.Desc
	poolExhaustions   *prometheus.Desc
	queueFullDrops    *prometheus.Desc
	overflowDiscards  *prometheus.Desc
	latencyP50        *prometheus.Desc
	latencyP99        *prometheus.Desc
	latencyP999       *prometheus.Desc
}

// NewCollector builds a Collector over the given sessions. Call
// prometheus.MustRegister(collector) once per process.
func NewCollector(sources ...SnapshotSource) *Collector {
	labels := []string{"session"}
	mk := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("bcp_"+name, help, labels, nil)
	}
	return &Collector{
		sources:           sources,
		framesSent:        prometheus.NewDesc("bcp_frames_sent_total", "Frames transmitted, by kind.", append(append([]string{}, labels...), "kind"), nil),
		framesReceived:    prometheus.NewDesc("bcp_frames_received_total", "Frames received, by kind.", append(append([]string{}, labels...), "kind"), nil),
		bytesSent:         mk("bytes_sent_total", "Payload bytes transmitted."),
		bytesAcked:        mk("bytes_acked_total", "Payload bytes cumulatively acknowledged."),
		retransmits:       mk("retransmits_total", "Frames re-emitted in response to a NACK."),
		protocolDrops:     mk("protocol_drops_total", "Frames dropped due to CRC mismatch, FSN gap, or unknown ctrl."),
		handshakeAttempts: mk("handshake_attempts_total", "Open calls."),
		handshakeTimeouts: mk("handshake_timeouts_total", "Handshake timer expirations."),
		poolExhaustions:   mk("pool_exhaustions_total", "Failed pool acquires."),
		queueFullDrops:    mk("queue_full_drops_total", "Events that could not be enqueued."),
		overflowDiscards:  mk("overflow_discards_total", "In-progress messages discarded for exceeding MAL."),
		latencyP50:        mk("round_trip_latency_p50_ns", "Estimated 50th percentile round-trip latency, nanoseconds."),
		latencyP99:        mk("round_trip_latency_p99_ns", "Estimated 99th percentile round-trip latency, nanoseconds."),
		latencyP999:       mk("round_trip_latency_p999_ns", "Estimated 99.9th percentile round-trip latency, nanoseconds."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesSent
	ch <- c.framesReceived
	ch <- c.bytesSent
	ch <- c.bytesAcked
	ch <- c.retransmits
	ch <- c.protocolDrops
	ch <- c.handshakeAttempts
	ch <- c.handshakeTimeouts
	ch <- c.poolExhaustions
	ch <- c.queueFullDrops
	ch <- c.overflowDiscards
	ch <- c.latencyP50
	ch <- c.latencyP99
	ch <- c.latencyP999
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, src := range c.sources {
		snap := src.MetricsSnapshot()
		tag := src.Tag()

		for i := 0; i < 8; i++ {
			ch <- prometheus.MustNewConstMetric(c.framesSent, prometheus.CounterValue, float64(snap.FramesSent[i]), tag, frameKindLabels[i])
			ch <- prometheus.MustNewConstMetric(c.framesReceived, prometheus.CounterValue, float64(snap.FramesReceived[i]), tag, frameKindLabels[i])
		}
		ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(snap.BytesSent), tag)
		ch <- prometheus.MustNewConstMetric(c.bytesAcked, prometheus.CounterValue, float64(snap.BytesAcked), tag)
		ch <- prometheus.MustNewConstMetric(c.retransmits, prometheus.CounterValue, float64(snap.Retransmits), tag)
		ch <- prometheus.MustNewConstMetric(c.protocolDrops, prometheus.CounterValue, float64(snap.ProtocolDrops), tag)
		ch <- prometheus.MustNewConstMetric(c.handshakeAttempts, prometheus.CounterValue, float64(snap.HandshakeAttempts), tag)
		ch <- prometheus.MustNewConstMetric(c.handshakeTimeouts, prometheus.CounterValue, float64(snap.HandshakeTimeouts), tag)
		ch <- prometheus.MustNewConstMetric(c.poolExhaustions, prometheus.CounterValue, float64(snap.PoolExhaustions), tag)
		ch <- prometheus.MustNewConstMetric(c.queueFullDrops, prometheus.CounterValue, float64(snap.QueueFullDrops), tag)
		ch <- prometheus.MustNewConstMetric(c.overflowDiscards, prometheus.CounterValue, float64(snap.OverflowDiscards), tag)
		ch <- prometheus.MustNewConstMetric(c.latencyP50, prometheus.GaugeValue, float64(snap.LatencyP50Ns), tag)
		ch <- prometheus.MustNewConstMetric(c.latencyP99, prometheus.GaugeValue, float64(snap.LatencyP99Ns), tag)
		ch <- prometheus.MustNewConstMetric(c.latencyP999, prometheus.GaugeValue, float64(snap.LatencyP999Ns), tag)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
