// Package constants centralizes loom's tunable defaults.
package constants

import "time"

// Wire / batching limits (spec section 3.1, 3.3, 6.1).
const (
	// BatchSize is the number of datagrams a single Messages batch can
	// hold, sized to the platform's batch-read limit.
	BatchSize = 1024

	// MaxPacket bounds the size of a single UDP datagram buffer.
	MaxPacket = 1024 * 4
)

// Account table defaults (spec section 3.2, 4.3.3).
const (
	// DefaultTableSize is the initial account table capacity when no
	// testnet bootstrap file is supplied.
	DefaultTableSize = 1024

	// RehashNumerator / RehashDenominator express the 0.75 load factor
	// threshold as used*4 > len*3 without floating point.
	RehashNumerator   = 4
	RehashDenominator = 3
)

// Stage timing (spec section 4.1, 5).
const (
	// ListenerPollInterval is how often a port listener wakes to check
	// the shared exit flag between channel deliveries.
	ListenerPollInterval = 500 * time.Microsecond

	// ReaderReadTimeout bounds how long the Reader stage blocks on a
	// single socket read before checking for shutdown.
	ReaderReadTimeout = 1 * time.Second

	// JoinTimeout is the maximum time an integration test should wait
	// for Runtime.Join to return after a shutdown signal.
	JoinTimeout = 2 * time.Second
)
