package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusObserverCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPrometheusObserver(reg)

	o.ObserveTransaction(true)
	o.ObserveTransaction(true)
	o.ObserveTransaction(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(o.transactions.WithLabelValues("accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.transactions.WithLabelValues("rejected")))
}

func TestPrometheusObserverTracksBatchCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPrometheusObserver(reg)

	o.ObserveBatchRead(4, 800, 2_000)
	o.ObserveBatchRead(0, 0, 500)

	assert.Equal(t, float64(1), testutil.ToFloat64(o.batchesRead))
	assert.Equal(t, float64(4), testutil.ToFloat64(o.datagrams))
	assert.Equal(t, float64(800), testutil.ToFloat64(o.bytesRead))
}

func TestPrometheusObserverTracksDropsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPrometheusObserver(reg)

	o.ObserveDrop("insufficient funds")
	o.ObserveDrop("insufficient funds")
	o.ObserveDrop("unknown from")

	assert.Equal(t, float64(2), testutil.ToFloat64(o.drops.WithLabelValues("insufficient funds")))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.drops.WithLabelValues("unknown from")))
}

func TestPrometheusObserverRehashCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPrometheusObserver(reg)

	o.ObserveRehash(16)
	o.ObserveRehash(32)

	assert.Equal(t, float64(2), testutil.ToFloat64(o.rehashes))
}
