// Package batch implements the recycled Messages batch the reader and
// state stages pass between themselves, and the free-list pool that
// avoids per-packet allocation on the hot path.
package batch

import (
	"net/netip"
	"sync"

	"github.com/sakridge/loom/internal/constants"
	"github.com/sakridge/loom/internal/wire"
)

// Size is the batch capacity, sized to the platform's batch-read
// limit (spec section 3.3).
const Size = constants.BatchSize

// Datagram records a single received datagram's length and source
// address, parallel to the corresponding entry in Messages.Msgs.
type Datagram struct {
	Len  int
	Addr netip.AddrPort
}

// Messages is a pair of parallel arrays: message payloads and their
// per-datagram length/source metadata. A batch has exactly one
// logical owner at any instant even though it travels behind a
// shared pointer (Reader -> State -> Reader).
type Messages struct {
	Msgs []wire.Message
	Data []Datagram
}

func newMessages() *Messages {
	return &Messages{
		Msgs: make([]wire.Message, Size),
		Data: make([]Datagram, Size),
	}
}

// Reset grows both arrays back to full capacity, discarding any
// truncation from a previous read.
func (m *Messages) Reset() {
	m.Msgs = m.Msgs[:cap(m.Msgs)]
	m.Data = m.Data[:cap(m.Data)]
}

// Truncate shrinks both arrays to n entries, after a read has
// determined how many datagrams actually arrived.
func (m *Messages) Truncate(n int) {
	m.Msgs = m.Msgs[:n]
	m.Data = m.Data[:n]
}

// Shared wraps a *Messages with a reader-writer lock. The lock is a
// safety net, not the coordination mechanism: ownership transfer
// between stages is enforced by the OTP port protocol, not by this
// lock being contended.
type Shared struct {
	mu sync.RWMutex
	m  *Messages
}

// NewShared wraps m for cross-stage handoff.
func NewShared(m *Messages) *Shared {
	return &Shared{m: m}
}

// With runs fn with exclusive access to the underlying Messages.
func (s *Shared) With(fn func(*Messages)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.m)
}

// View runs fn with read-only access to the underlying Messages.
func (s *Shared) View(fn func(*Messages)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.m)
}

// Pool is a mutex-guarded free list of spare batch handles. The free
// list starts empty; batches are created on demand and recycled
// after the state stage is done with them.
type Pool struct {
	mu   sync.Mutex
	free []*Messages
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Get pops a batch from the free list, or allocates a fresh one sized
// to Size if the free list is empty.
func (p *Pool) Get() *Messages {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return newMessages()
	}
	m := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()
	m.Reset()
	return m
}

// Put returns a batch to the free list unconditionally.
func (p *Pool) Put(m *Messages) {
	p.mu.Lock()
	p.free = append(p.free, m)
	p.mu.Unlock()
}
