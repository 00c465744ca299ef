// Package interfaces holds small internal interface definitions shared
// across loom's packages, kept separate to avoid import cycles between
// the root package and its internal stages.
package interfaces

// Logger is the minimal logging surface stages depend on.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer receives instrumentation events from the state and reader
// stages. The daemon hands one Observer to both stages, so an
// implementation is called from the Reader and State goroutines
// concurrently and must be safe for concurrent use; callers do no
// locking on its behalf.
type Observer interface {
	ObserveBatchRead(datagrams int, bytes uint64, latencyNs uint64)
	ObserveTransaction(accepted bool)
	ObserveBalanceQuery(accepted bool)
	ObserveRehash(newLen int)
	ObserveDrop(reason string)
}
