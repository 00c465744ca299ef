// Package ledger implements the open-addressed account table the
// state stage owns exclusively.
package ledger

import (
	"github.com/sakridge/loom/internal/constants"
	"github.com/sakridge/loom/internal/wire"
)

// Table is an open-addressed hash table over wire.Account slots,
// probed linearly from HashKey(key) % len. A slot is empty iff its
// From is the all-zero key. Only the state stage is expected to call
// into a Table; callers from other goroutines must supply their own
// exclusion.
type Table struct {
	accounts []wire.Account
	used     int
}

// New allocates a table with the given initial capacity, which must
// be a power of two per spec's account-table sizing convention.
func New(size int) *Table {
	return &Table{accounts: make([]wire.Account, size)}
}

// FromList bootstraps a table from a fixed account list (the JSON
// test-accounts bootstrap), sizing the table to twice the input
// length so the initial load factor stays well under 0.75. An empty
// list still gets a usable table instead of the zero-capacity table
// findSlot's modulo cannot operate on.
func FromList(accounts []wire.Account) *Table {
	size := len(accounts) * 2
	if size == 0 {
		size = 1
	}
	t := New(size)
	for _, a := range accounts {
		idx := t.findSlot(a.From)
		t.accounts[idx] = a
	}
	t.used = len(accounts)
	return t
}

// Len returns the table's current capacity.
func (t *Table) Len() int {
	return len(t.accounts)
}

// Used returns the number of occupied slots.
func (t *Table) Used() int {
	return t.used
}

// findSlot returns the index of the slot holding key, or the first
// empty slot encountered during linear probing if key is absent.
func (t *Table) findSlot(key [32]byte) int {
	return findSlot(t.accounts, key)
}

func findSlot(accounts []wire.Account, key [32]byte) int {
	n := len(accounts)
	start := int(wire.HashKey(key) % uint64(n))
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if accounts[idx].Empty() || accounts[idx].From == key {
			return idx
		}
	}
	// Every slot occupied by a different key: the caller is expected to
	// have rehashed before load factor reaches 1.0, so this cannot
	// happen in practice; return the probe start as a last resort.
	return start
}

// FindSlot returns the index and the account currently at key's slot
// (zero-value Account if the slot is empty).
func (t *Table) FindSlot(key [32]byte) (int, wire.Account) {
	idx := t.findSlot(key)
	return idx, t.accounts[idx]
}

// At returns the account at idx.
func (t *Table) At(idx int) wire.Account {
	return t.accounts[idx]
}

// Set writes acc into slot idx.
func (t *Table) Set(idx int, acc wire.Account) {
	t.accounts[idx] = acc
}

// MarkNew records that the slot at idx transitioned from empty to
// occupied, for used bookkeeping.
func (t *Table) MarkNew() {
	t.used++
}

// ShouldRehash reports whether the table's load factor exceeds the
// 0.75 threshold (used*4 > len*3) and a rehash is due before the next
// insert. A table at exactly 0.75 load is not rehashed.
func (t *Table) ShouldRehash() bool {
	return t.used*constants.RehashNumerator > len(t.accounts)*constants.RehashDenominator
}

// Rehash doubles the table's capacity and reinserts every occupied
// slot, preserving the set of (key, balance) pairs. This is an
// O(len) operation that blocks the state stage; acceptable because
// load factor is bounded at 0.75 before it is ever called.
func (t *Table) Rehash() {
	next := make([]wire.Account, len(t.accounts)*2)
	for _, acc := range t.accounts {
		if acc.Empty() {
			continue
		}
		idx := findSlot(next, acc.From)
		next[idx] = acc
	}
	t.accounts = next
}
