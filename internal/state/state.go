// Package state implements the transaction and balance-query engine:
// the only component that mutates the account table, invoked
// exclusively from the State port's single listener goroutine.
package state

import (
	"net/netip"

	"github.com/sakridge/loom/internal/batch"
	"github.com/sakridge/loom/internal/interfaces"
	"github.com/sakridge/loom/internal/ledger"
	"github.com/sakridge/loom/internal/otp"
	"github.com/sakridge/loom/internal/wire"
)

// Observer is the instrumentation surface the engine calls into. All
// calls happen from the single State goroutine.
type Observer = interfaces.Observer

type noopObserver struct{}

func (noopObserver) ObserveBatchRead(int, uint64, uint64) {}
func (noopObserver) ObserveTransaction(bool)              {}
func (noopObserver) ObserveBalanceQuery(bool)             {}
func (noopObserver) ObserveRehash(int)                    {}
func (noopObserver) ObserveDrop(string)                   {}

// Engine owns the account table.
type Engine struct {
	table    *ledger.Table
	observer Observer
}

// New constructs an Engine over table. A nil observer is replaced
// with a no-op one.
func New(table *ledger.Table, observer Observer) *Engine {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Engine{table: table, observer: observer}
}

// FromList bootstraps an Engine's table from a fixed account list,
// for the JSON test-accounts bootstrap file.
func FromList(accounts []wire.Account, observer Observer) *Engine {
	return New(ledger.FromList(accounts), observer)
}

// Table exposes the underlying account table, mainly for tests that
// need to assert on post-processing state.
func (e *Engine) Table() *ledger.Table {
	return e.table
}

// Run is the Listen callback for port State: process every message
// in the batch, then return the batch on Recycle.
func (e *Engine) Run(rt *otp.Runtime, d otp.Data) error {
	sm, ok := d.(otp.SharedMessages)
	if !ok {
		return nil
	}
	sm.Batch.With(func(m *batch.Messages) {
		e.execute(rt, m)
	})
	return rt.Send(otp.Recycle, otp.SharedMessages{Batch: sm.Batch})
}

func (e *Engine) execute(rt *otp.Runtime, m *batch.Messages) {
	for i := range m.Msgs {
		if e.table.ShouldRehash() {
			e.table.Rehash()
			e.observer.ObserveRehash(e.table.Len())
		}

		msg := &m.Msgs[i]
		addr := m.Data[i].Addr

		switch msg.Pld.Kind {
		case wire.KindTransaction:
			e.transfer(msg)
		case wire.KindCheckBalance:
			e.checkBalance(rt, msg, addr)
		default:
			// Signature, Subscribe, GetLedger and anything unrecognized are
			// accepted on the wire but not processed here.
		}
	}
}

// transfer implements the withdraw/deposit two-phase transfer (spec
// section 4.3.1). A well-formed transfer moves the message's wire
// state Unknown -> Withdrawn -> Deposited; any precondition failure
// drops the message silently, leaving state at its inbound value.
func (e *Engine) transfer(msg *wire.Message) {
	pld := &msg.Pld
	tx := pld.Data.AsTransaction(pld.Kind)

	fi, from := e.table.FindSlot(pld.From)
	if from.Empty() || from.From != pld.From {
		e.observer.ObserveTransaction(false)
		e.observer.ObserveDrop("transfer: unknown from")
		return
	}

	ti, to := e.table.FindSlot(tx.To)
	if !to.Empty() && to.From != tx.To {
		e.observer.ObserveTransaction(false)
		e.observer.ObserveDrop("transfer: to-slot collision")
		return
	}

	combined := tx.Amount + pld.Fee
	if from.Balance < combined {
		e.observer.ObserveTransaction(false)
		e.observer.ObserveDrop("transfer: insufficient funds")
		return
	}

	from.Balance -= combined
	e.table.Set(fi, from)
	pld.State = wire.StateWithdrawn

	// Re-read the destination slot after the debit: when ti == fi (a
	// transfer to one's own key), this observes the just-written
	// balance instead of a stale copy.
	to = e.table.At(ti)
	if to.Empty() {
		to.From = tx.To
		e.table.MarkNew()
	}
	to.Balance += tx.Amount
	e.table.Set(ti, to)
	pld.State = wire.StateDeposited

	e.observer.ObserveTransaction(true)
}

// checkBalance implements the balance-query handler (spec section
// 4.3.2). The reply carries the asker's own balance, not the queried
// key's balance; this mirrors the reference node's observed behavior
// rather than the surface reading of the request, an open question
// flagged for product review rather than fixed here.
func (e *Engine) checkBalance(rt *otp.Runtime, msg *wire.Message, addr netip.AddrPort) {
	pld := &msg.Pld
	cb := pld.Data.AsCheckBalance(pld.Kind)

	fi, from := e.table.FindSlot(pld.From)
	if from.Empty() || from.From != pld.From {
		e.observer.ObserveBalanceQuery(false)
		e.observer.ObserveDrop("checkBalance: unknown from")
		return
	}
	if from.Balance < pld.Fee {
		e.observer.ObserveBalanceQuery(false)
		e.observer.ObserveDrop("checkBalance: insufficient fee")
		return
	}

	from.Balance -= pld.Fee
	e.table.Set(fi, from)
	pld.State = wire.StateWithdrawn

	cb.Amount = from.Balance
	pld.Data.SetCheckBalance(cb)

	e.observer.ObserveBalanceQuery(true)
	_ = rt.Send(otp.Sender, otp.SendMessage{Msg: *msg, Addr: addr})
}
