package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sakridge/loom/internal/interfaces"
)

// PrometheusObserver reports the same events as ObserverFor but
// directly onto a Prometheus registry, for processes that expose a
// /metrics endpoint instead of polling Snapshot.
type PrometheusObserver struct {
	batchesRead  prometheus.Counter
	datagrams    prometheus.Counter
	bytesRead    prometheus.Counter
	batchLatency prometheus.Histogram

	transactions   *prometheus.CounterVec
	balanceQueries *prometheus.CounterVec
	rehashes       prometheus.Counter
	drops          *prometheus.CounterVec
}

// NewPrometheusObserver registers loom's counters and histograms on reg
// and returns an Observer that reports to them.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		batchesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "reader",
			Name:      "batches_read_total",
			Help:      "Recvmmsg rounds that returned at least one datagram.",
		}),
		datagrams: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "reader",
			Name:      "datagrams_read_total",
			Help:      "Datagrams received across all batches.",
		}),
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "reader",
			Name:      "bytes_read_total",
			Help:      "Bytes received across all batches.",
		}),
		batchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loom",
			Subsystem: "reader",
			Name:      "batch_read_latency_seconds",
			Help:      "Time spent in one Recvmmsg round.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 8),
		}),
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "state",
			Name:      "transactions_total",
			Help:      "Transfers processed, by outcome.",
		}, []string{"outcome"}),
		balanceQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "state",
			Name:      "balance_queries_total",
			Help:      "Balance queries processed, by outcome.",
		}, []string{"outcome"}),
		rehashes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "state",
			Name:      "rehashes_total",
			Help:      "Account table rehashes performed.",
		}),
		drops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "state",
			Name:      "drops_total",
			Help:      "Messages dropped, by reason.",
		}, []string{"reason"}),
	}
}

func (o *PrometheusObserver) ObserveBatchRead(datagrams int, bytes uint64, latencyNs uint64) {
	if datagrams > 0 {
		o.batchesRead.Inc()
	}
	o.datagrams.Add(float64(datagrams))
	o.bytesRead.Add(float64(bytes))
	o.batchLatency.Observe(float64(latencyNs) / 1e9)
}

func (o *PrometheusObserver) ObserveTransaction(accepted bool) {
	o.transactions.WithLabelValues(outcomeLabel(accepted)).Inc()
}

func (o *PrometheusObserver) ObserveBalanceQuery(accepted bool) {
	o.balanceQueries.WithLabelValues(outcomeLabel(accepted)).Inc()
}

func (o *PrometheusObserver) ObserveRehash(int) {
	o.rehashes.Inc()
}

func (o *PrometheusObserver) ObserveDrop(reason string) {
	o.drops.WithLabelValues(reason).Inc()
}

func outcomeLabel(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "rejected"
}

var _ interfaces.Observer = (*PrometheusObserver)(nil)
