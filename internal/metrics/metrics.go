// Package metrics implements the built-in Observer: atomic counters and
// a latency histogram, exposed as a point-in-time snapshot.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/sakridge/loom/internal/interfaces"
)

// LatencyBuckets defines the batch-read latency histogram buckets in
// nanoseconds, from 1us to 10s with logarithmic spacing.
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

// Metrics tracks operational statistics for a running daemon.
type Metrics struct {
	// Batch-read counters
	BatchesRead atomic.Uint64 // Total Recvmmsg rounds with at least one datagram
	Datagrams   atomic.Uint64 // Total datagrams received across all batches
	BytesRead   atomic.Uint64 // Total bytes received

	// State-engine counters
	TransactionsAccepted atomic.Uint64
	TransactionsRejected atomic.Uint64
	BalanceQueriesOK     atomic.Uint64
	BalanceQueriesFailed atomic.Uint64
	Rehashes             atomic.Uint64
	Drops                atomic.Uint64

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative batch-read latency in nanoseconds
	BatchCount     atomic.Uint64 // Batches observed (for average latency calculation)

	// Latency histogram buckets (cumulative counts).
	// Each bucket[i] contains the count of batches with latency <= LatencyBuckets[i].
	LatencyHistogram [numLatencyBuckets]atomic.Uint64

	// Daemon lifecycle
	StartTime atomic.Int64 // Daemon start timestamp (UnixNano)
	StopTime  atomic.Int64 // Daemon stop timestamp (UnixNano)
}

// New creates a fresh Metrics instance, stamped with the current time.
func New() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordBatchRead records one Recvmmsg round.
func (m *Metrics) RecordBatchRead(datagrams int, bytes uint64, latencyNs uint64) {
	if datagrams > 0 {
		m.BatchesRead.Add(1)
	}
	m.Datagrams.Add(uint64(datagrams))
	m.BytesRead.Add(bytes)
	m.recordLatency(latencyNs)
}

// RecordTransaction records a processed transfer.
func (m *Metrics) RecordTransaction(accepted bool) {
	if accepted {
		m.TransactionsAccepted.Add(1)
	} else {
		m.TransactionsRejected.Add(1)
	}
}

// RecordBalanceQuery records a processed balance query.
func (m *Metrics) RecordBalanceQuery(accepted bool) {
	if accepted {
		m.BalanceQueriesOK.Add(1)
	} else {
		m.BalanceQueriesFailed.Add(1)
	}
}

// RecordRehash records the account table growing to newLen slots.
func (m *Metrics) RecordRehash(newLen int) {
	m.Rehashes.Add(1)
	_ = newLen
}

// RecordDrop records a dropped message, regardless of reason.
func (m *Metrics) RecordDrop(reason string) {
	m.Drops.Add(1)
	_ = reason
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.BatchCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHistogram[i].Add(1)
		}
	}
}

// Stop marks the daemon as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time copy of Metrics, with derived rates.
type Snapshot struct {
	BatchesRead uint64
	Datagrams   uint64
	BytesRead   uint64

	TransactionsAccepted uint64
	TransactionsRejected uint64
	BalanceQueriesOK     uint64
	BalanceQueriesFailed uint64
	Rehashes             uint64
	Drops                uint64

	AvgBatchLatencyNs uint64
	UptimeNs          uint64

	LatencyP50Ns uint64
	LatencyP99Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	DatagramsPerSecond float64
	BytesPerSecond     float64
}

// Snapshot copies the current counter values and computes derived rates.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		BatchesRead:          m.BatchesRead.Load(),
		Datagrams:            m.Datagrams.Load(),
		BytesRead:            m.BytesRead.Load(),
		TransactionsAccepted: m.TransactionsAccepted.Load(),
		TransactionsRejected: m.TransactionsRejected.Load(),
		BalanceQueriesOK:     m.BalanceQueriesOK.Load(),
		BalanceQueriesFailed: m.BalanceQueriesFailed.Load(),
		Rehashes:             m.Rehashes.Load(),
		Drops:                m.Drops.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	batchCount := m.BatchCount.Load()
	if batchCount > 0 {
		snap.AvgBatchLatencyNs = totalLatencyNs / batchCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.DatagramsPerSecond = float64(snap.Datagrams) / uptimeSeconds
		snap.BytesPerSecond = float64(snap.BytesRead) / uptimeSeconds
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyHistogram[i].Load()
	}

	if batchCount > 0 {
		snap.LatencyP50Ns = m.percentile(0.50)
		snap.LatencyP99Ns = m.percentile(0.99)
	}

	return snap
}

// percentile estimates the latency at the given percentile (0.0-1.0) by
// linear interpolation between histogram buckets.
func (m *Metrics) percentile(p float64) uint64 {
	total := m.BatchCount.Load()
	if total == 0 {
		return 0
	}
	target := uint64(float64(total) * p)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		count := m.LatencyHistogram[i].Load()
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyHistogram[i-1].Load()
			}
			if count == prevCount {
				return bucket
			}
			fraction := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, for test isolation.
func (m *Metrics) Reset() {
	m.BatchesRead.Store(0)
	m.Datagrams.Store(0)
	m.BytesRead.Store(0)
	m.TransactionsAccepted.Store(0)
	m.TransactionsRejected.Store(0)
	m.BalanceQueriesOK.Store(0)
	m.BalanceQueriesFailed.Store(0)
	m.Rehashes.Store(0)
	m.Drops.Store(0)
	m.TotalLatencyNs.Store(0)
	m.BatchCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyHistogram[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// ObserverFor adapts m to the interfaces.Observer surface that the
// reader and state stages call into.
type ObserverFor struct {
	m *Metrics
}

// NewObserver wraps m as an interfaces.Observer.
func NewObserver(m *Metrics) *ObserverFor {
	return &ObserverFor{m: m}
}

func (o *ObserverFor) ObserveBatchRead(datagrams int, bytes uint64, latencyNs uint64) {
	o.m.RecordBatchRead(datagrams, bytes, latencyNs)
}

func (o *ObserverFor) ObserveTransaction(accepted bool) {
	o.m.RecordTransaction(accepted)
}

func (o *ObserverFor) ObserveBalanceQuery(accepted bool) {
	o.m.RecordBalanceQuery(accepted)
}

func (o *ObserverFor) ObserveRehash(newLen int) {
	o.m.RecordRehash(newLen)
}

func (o *ObserverFor) ObserveDrop(reason string) {
	o.m.RecordDrop(reason)
}

var _ interfaces.Observer = (*ObserverFor)(nil)
