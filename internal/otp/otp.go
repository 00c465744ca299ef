// Package otp implements the staged pipeline runtime: a fixed set of
// named ports, one pinned goroutine per bound port, and a cooperative
// shutdown protocol. It generalizes the per-queue pinned I/O loop
// pattern to a small actor-style pipeline instead of a single hardware
// queue.
package otp

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sakridge/loom/internal/batch"
	"github.com/sakridge/loom/internal/constants"
	"github.com/sakridge/loom/internal/wire"

	"net/netip"
)

// Port names the closed set of channels the runtime owns. Adding a
// port is a code change, not a runtime registration.
type Port int

const (
	Main Port = iota
	Reader
	Recycle
	State
	Sender
	numPorts
)

func (p Port) String() string {
	switch p {
	case Main:
		return "Main"
	case Reader:
		return "Reader"
	case Recycle:
		return "Recycle"
	case State:
		return "State"
	case Sender:
		return "Sender"
	default:
		return fmt.Sprintf("Port(%d)", int(p))
	}
}

// ListenerPollInterval is how often a Listen loop wakes to check the
// shared exit flag between channel deliveries.
const ListenerPollInterval = constants.ListenerPollInterval

// Data is the closed set of messages ports carry. Stages type-switch
// on it and ignore variants they do not handle.
type Data interface {
	isData()
}

// Signal carries no payload; used on Main to trigger shutdown.
type Signal struct{}

func (Signal) isData() {}

// SharedMessages hands a batch from Reader to State, or back from
// State to Recycle.
type SharedMessages struct {
	Batch *batch.Shared
}

func (SharedMessages) isData() {}

// SendMessage asks the Sender stage to transmit one message to one
// address.
type SendMessage struct {
	Msg  wire.Message
	Addr netip.AddrPort
}

func (SendMessage) isData() {}

// ErrPortRebind is returned by Source/Listen when a port already has
// a bound stage.
var ErrPortRebind = fmt.Errorf("otp: port already bound")

// ErrChannelSend is returned by Send once the runtime has begun
// shutdown.
var ErrChannelSend = fmt.Errorf("otp: channel closed")

// Runtime owns one channel per Port and the pinned goroutines bound
// to them.
type Runtime struct {
	chans [numPorts]chan Data
	bound [numPorts]bool
	mu    sync.Mutex

	exit atomic.Bool
	wg   sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// New allocates a Runtime with one buffered channel per port. No
// goroutines are started until Source/Listen is called.
func New() *Runtime {
	rt := &Runtime{}
	for i := range rt.chans {
		rt.chans[i] = make(chan Data, batch.Size)
	}
	return rt
}

func (rt *Runtime) bind(port Port) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.bound[port] {
		return fmt.Errorf("otp: bind %s: %w", port, ErrPortRebind)
	}
	rt.bound[port] = true
	return nil
}

func (rt *Runtime) recordErr(err error) {
	if err == nil {
		return
	}
	rt.errMu.Lock()
	if rt.err == nil {
		rt.err = err
	}
	rt.errMu.Unlock()
}

// Source registers fn as the producing stage for port. It spawns one
// OS-thread-pinned goroutine that calls fn repeatedly until the exit
// flag is set or fn returns an error.
func (rt *Runtime) Source(port Port, fn func(*Runtime) error) error {
	if err := rt.bind(port); err != nil {
		return err
	}
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		for !rt.exit.Load() {
			if err := fn(rt); err != nil {
				rt.recordErr(err)
				return
			}
		}
	}()
	return nil
}

// Listen registers fn as the consumer of port. It spawns one
// OS-thread-pinned goroutine that blocks on the port's channel with a
// 500us polling timeout, so it can observe the exit flag promptly.
func (rt *Runtime) Listen(port Port, fn func(*Runtime, Data) error) error {
	if err := rt.bind(port); err != nil {
		return err
	}
	ch := rt.chans[port]
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		for !rt.exit.Load() {
			select {
			case d := <-ch:
				if err := fn(rt, d); err != nil {
					rt.recordErr(err)
					return
				}
			case <-time.After(ListenerPollInterval):
			}
		}
	}()
	return nil
}

// Send enqueues d onto to's channel. Returns ErrChannelSend once
// shutdown has begun.
func (rt *Runtime) Send(to Port, d Data) error {
	if rt.exit.Load() {
		return fmt.Errorf("otp: send to %s: %w", to, ErrChannelSend)
	}
	rt.chans[to] <- d
	return nil
}

// Join blocks until a Signal arrives on Main, then calls Shutdown and
// returns its result.
func (rt *Runtime) Join() error {
	<-rt.chans[Main]
	return rt.Shutdown()
}

// Shutdown sets the shared exit flag, waits for every bound stage
// goroutine to observe it and return, and surfaces the first error
// any stage recorded.
func (rt *Runtime) Shutdown() error {
	rt.exit.Store(true)
	rt.wg.Wait()
	rt.errMu.Lock()
	defer rt.errMu.Unlock()
	return rt.err
}
