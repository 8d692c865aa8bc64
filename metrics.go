package bcp

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the round-trip-time histogram buckets in
// nanoseconds, from a DATA frame's first transmission to its ACK.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks per-session protocol counters: frames by ctrl kind,
// retransmissions, bytes acknowledged, handshake attempts/timeouts, and
// a round-trip-latency histogram.
type Metrics struct {
	FramesSent     [8]atomic.Uint64 // indexed by ctrlIndex(ctrl)
	FramesReceived [8]atomic.Uint64

	BytesSent     atomic.Uint64
	BytesAcked    atomic.Uint64
	Retransmits   atomic.Uint64 // frames re-emitted in response to a NACK
	ProtocolDrops atomic.Uint64 // CRC mismatch / FSN gap / unknown ctrl

	HandshakeAttempts atomic.Uint64
	HandshakeTimeouts atomic.Uint64

	PoolExhaustions  atomic.Uint64
	QueueFullDrops   atomic.Uint64
	OverflowDiscards atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// ctrlIndex maps a wire ctrl byte to a dense Metrics array index.
func ctrlIndex(ctrl uint8) int {
	switch ctrl {
	case 0x10, 0x11, 0x12, 0x13: // DATA_COMPLETE..DATA_END
		return int(ctrl - 0x10)
	case 0x14: // DATA_ACK
		return 4
	case 0x15: // DATA_NACK
		return 5
	case 0x18: // SYNC_REQ
		return 6
	case 0x1C: // SYNC_ACK
		return 7
	default:
		return 0
	}
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSend records a frame transmission.
func (m *Metrics) RecordSend(ctrl uint8, payloadBytes int) {
	m.FramesSent[ctrlIndex(ctrl)].Add(1)
	m.BytesSent.Add(uint64(payloadBytes))
}

// RecordReceive records a frame reception.
func (m *Metrics) RecordReceive(ctrl uint8) {
	m.FramesReceived[ctrlIndex(ctrl)].Add(1)
}

// RecordAck records a cumulative ACK freeing n bytes from the in-flight
// list.
func (m *Metrics) RecordAck(bytesFreed int) {
	m.BytesAcked.Add(uint64(bytesFreed))
}

// RecordRetransmit records frames re-emitted in response to a NACK.
func (m *Metrics) RecordRetransmit(count int) {
	m.Retransmits.Add(uint64(count))
}

// RecordProtocolDrop records a CRC mismatch, FSN gap, or unknown ctrl.
func (m *Metrics) RecordProtocolDrop() {
	m.ProtocolDrops.Add(1)
}

// RecordHandshakeAttempt records one Open call.
func (m *Metrics) RecordHandshakeAttempt() {
	m.HandshakeAttempts.Add(1)
}

// RecordHandshakeTimeout records a handshake timer expiry.
func (m *Metrics) RecordHandshakeTimeout() {
	m.HandshakeTimeouts.Add(1)
}

// RecordPoolExhaustion records a failed pool Acquire.
func (m *Metrics) RecordPoolExhaustion() {
	m.PoolExhaustions.Add(1)
}

// RecordQueueFullDrop records an event that could not be enqueued.
func (m *Metrics) RecordQueueFullDrop() {
	m.QueueFullDrops.Add(1)
}

// RecordOverflowDiscard records an in-progress application message
// discarded because it would exceed MAL.
func (m *Metrics) RecordOverflowDiscard() {
	m.OverflowDiscards.Add(1)
}

// RecordRoundTrip records the latency between a DATA frame's first
// transmission and the ACK that freed it.
func (m *Metrics) RecordRoundTrip(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the session as stopped, for uptime accounting.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read
// without further synchronization.
type MetricsSnapshot struct {
	FramesSent     [8]uint64
	FramesReceived [8]uint64

	BytesSent     uint64
	BytesAcked    uint64
	Retransmits   uint64
	ProtocolDrops uint64

	HandshakeAttempts uint64
	HandshakeTimeouts uint64

	PoolExhaustions  uint64
	QueueFullDrops   uint64
	OverflowDiscards uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var snap MetricsSnapshot
	for i := range m.FramesSent {
		snap.FramesSent[i] = m.FramesSent[i].Load()
		snap.FramesReceived[i] = m.FramesReceived[i].Load()
	}
	snap.BytesSent = m.BytesSent.Load()
	snap.BytesAcked = m.BytesAcked.Load()
	snap.Retransmits = m.Retransmits.Load()
	snap.ProtocolDrops = m.ProtocolDrops.Load()
	snap.HandshakeAttempts = m.HandshakeAttempts.Load()
	snap.HandshakeTimeouts = m.HandshakeTimeouts.Load()
	snap.PoolExhaustions = m.PoolExhaustions.Load()
	snap.QueueFullDrops = m.QueueFullDrops.Load()
	snap.OverflowDiscards = m.OverflowDiscards.Load()

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters, useful between test cases.
func (m *Metrics) Reset() {
	for i := range m.FramesSent {
		m.FramesSent[i].Store(0)
		m.FramesReceived[i].Store(0)
	}
	m.BytesSent.Store(0)
	m.BytesAcked.Store(0)
	m.Retransmits.Store(0)
	m.ProtocolDrops.Store(0)
	m.HandshakeAttempts.Store(0)
	m.HandshakeTimeouts.Store(0)
	m.PoolExhaustions.Store(0)
	m.QueueFullDrops.Store(0)
	m.OverflowDiscards.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection; an implementation set as
// Config.Observer receives a Session's protocol events in place of the
// built-in Metrics. internal/promexport does not use it: it reads
// MetricsSnapshot.
type Observer interface {
	ObserveSend(ctrl uint8, payloadBytes int)
	ObserveReceive(ctrl uint8)
	ObserveAck(bytesFreed int)
	ObserveRetransmit(count int)
	ObserveProtocolDrop()
	ObserveHandshakeAttempt()
	ObserveHandshakeTimeout()
	ObservePoolExhaustion()
	ObserveQueueFullDrop()
	ObserveOverflowDiscard()
	ObserveRoundTrip(latencyNs uint64)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSend(uint8, int)       {}
func (NoOpObserver) ObserveReceive(uint8)         {}
func (NoOpObserver) ObserveAck(int)               {}
func (NoOpObserver) ObserveRetransmit(int)        {}
func (NoOpObserver) ObserveProtocolDrop()         {}
func (NoOpObserver) ObserveHandshakeAttempt()     {}
func (NoOpObserver) ObserveHandshakeTimeout()     {}
func (NoOpObserver) ObservePoolExhaustion()       {}
func (NoOpObserver) ObserveQueueFullDrop()        {}
func (NoOpObserver) ObserveOverflowDiscard()      {}
func (NoOpObserver) ObserveRoundTrip(uint64)      {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given
// metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSend(ctrl uint8, payloadBytes int) {
	o.metrics.RecordSend(ctrl, payloadBytes)
}
func (o *MetricsObserver) ObserveReceive(ctrl uint8)     { o.metrics.RecordReceive(ctrl) }
func (o *MetricsObserver) ObserveAck(bytesFreed int)     { o.metrics.RecordAck(bytesFreed) }
func (o *MetricsObserver) ObserveRetransmit(count int)   { o.metrics.RecordRetransmit(count) }
func (o *MetricsObserver) ObserveProtocolDrop()          { o.metrics.RecordProtocolDrop() }
func (o *MetricsObserver) ObserveHandshakeAttempt()      { o.metrics.RecordHandshakeAttempt() }
func (o *MetricsObserver) ObserveHandshakeTimeout()      { o.metrics.RecordHandshakeTimeout() }
func (o *MetricsObserver) ObservePoolExhaustion()        { o.metrics.RecordPoolExhaustion() }
func (o *MetricsObserver) ObserveQueueFullDrop()         { o.metrics.RecordQueueFullDrop() }
func (o *MetricsObserver) ObserveOverflowDiscard()       { o.metrics.RecordOverflowDiscard() }
func (o *MetricsObserver) ObserveRoundTrip(latencyNs uint64) { o.metrics.RecordRoundTrip(latencyNs) }

// Compile-time interface checks.
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)