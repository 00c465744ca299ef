// Package loom is the main API for running a loom transaction node: a
// UDP-facing payment ledger built from a small staged pipeline.
package loom

import (
	"context"
	"net"

	"github.com/sakridge/loom/internal/constants"
	"github.com/sakridge/loom/internal/interfaces"
	"github.com/sakridge/loom/internal/ledger"
	"github.com/sakridge/loom/internal/metrics"
	"github.com/sakridge/loom/internal/otp"
	"github.com/sakridge/loom/internal/reader"
	"github.com/sakridge/loom/internal/sender"
	"github.com/sakridge/loom/internal/state"
	"github.com/sakridge/loom/internal/testaccounts"
)

// Logger is the logging surface a Daemon calls into; satisfied by
// *logging.Logger and by nil (no logging).
type Logger = interfaces.Logger

// Observer is the instrumentation surface a Daemon calls into;
// satisfied by *metrics.ObserverFor, *metrics.PrometheusObserver, or a
// custom implementation.
type Observer = interfaces.Observer

// DaemonParams configures a loom node.
type DaemonParams struct {
	// ListenPort is the UDP port the node binds to. Required.
	ListenPort uint16

	// TestAccountsFile, if non-empty, seeds the account table from a
	// JSON bootstrap file instead of starting with an empty table.
	TestAccountsFile string

	// TableSize sets the initial account table capacity when
	// TestAccountsFile is empty. Defaults to constants.DefaultTableSize.
	TableSize int
}

// DefaultParams returns DaemonParams with TableSize defaulted.
func DefaultParams(listenPort uint16) DaemonParams {
	return DaemonParams{
		ListenPort: listenPort,
		TableSize:  constants.DefaultTableSize,
	}
}

// Options holds dependencies a Daemon does not need a value for by
// default: cancellation, logging, and instrumentation.
type Options struct {
	// Context for cancellation; if nil, context.Background() is used.
	// Cancelling it wakes a blocked Join and runs the same cleanup as
	// Shutdown.
	Context context.Context

	// Logger for operational messages; nil disables logging.
	Logger Logger

	// Observer for instrumentation; nil uses metrics.NewObserver over a
	// fresh, unexported metrics.Metrics (retrievable via Daemon.Metrics).
	Observer Observer
}

// Daemon is a running loom node: the OTP runtime plus the stage
// handles wired to it.
type Daemon struct {
	rt         *otp.Runtime
	conn       *net.UDPConn
	senderConn *net.UDPConn
	metrics    *metrics.Metrics
	table      *ledger.Table
	engine     *state.Engine
}

// mainSignalOnCancel sends a Signal on Main when ctx is done, so that
// Join (which blocks on Main) wakes up and runs Shutdown. It is a
// best-effort convenience: a caller that never cancels ctx must call
// Shutdown directly.
func mainSignalOnCancel(ctx context.Context, rt *otp.Runtime) {
	go func() {
		<-ctx.Done()
		_ = rt.Send(otp.Main, otp.Signal{})
	}()
}

// NewDaemon binds params.ListenPort, wires the reader/state/sender
// stages onto a fresh otp.Runtime in the order the reference node
// uses (Reader source, Recycle listener, Sender listener, State
// listener), and returns a Daemon ready for Join.
func NewDaemon(ctx context.Context, params DaemonParams, options *Options) (*Daemon, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if options == nil {
		options = &Options{}
	}
	if options.Context != nil {
		ctx = options.Context
	}

	if params.ListenPort == 0 {
		return nil, NewError("loom.NewDaemon", ErrCodeMissingOption, "ListenPort is required")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(params.ListenPort)})
	if err != nil {
		return nil, WrapError("loom.NewDaemon: listen", err)
	}

	table, err := buildTable(params)
	if err != nil {
		conn.Close()
		return nil, WrapError("loom.NewDaemon: build table", err)
	}

	var m *metrics.Metrics
	observer := options.Observer
	if observer == nil {
		m = metrics.New()
		observer = metrics.NewObserver(m)
	}

	rdr := reader.NewWithObserver(conn, observer)
	engine := state.New(table, observer)

	senderConn, err := rdr.Sender()
	if err != nil {
		conn.Close()
		return nil, WrapError("loom.NewDaemon: dup sender socket", err)
	}
	snd := sender.New(senderConn)

	rt := otp.New()
	if err := rt.Source(otp.Reader, rdr.Run); err != nil {
		conn.Close()
		senderConn.Close()
		return nil, WrapError("loom.NewDaemon: bind Reader", err)
	}
	if err := rt.Listen(otp.Recycle, rdr.Recycle); err != nil {
		conn.Close()
		senderConn.Close()
		return nil, WrapError("loom.NewDaemon: bind Recycle", err)
	}
	if err := rt.Listen(otp.Sender, snd.Run); err != nil {
		conn.Close()
		senderConn.Close()
		return nil, WrapError("loom.NewDaemon: bind Sender", err)
	}
	if err := rt.Listen(otp.State, engine.Run); err != nil {
		conn.Close()
		senderConn.Close()
		return nil, WrapError("loom.NewDaemon: bind State", err)
	}

	mainSignalOnCancel(ctx, rt)

	if options.Logger != nil {
		options.Logger.Printf("loom: listening on :%d", params.ListenPort)
	}

	return &Daemon{rt: rt, conn: conn, senderConn: senderConn, metrics: m, table: table, engine: engine}, nil
}

func buildTable(params DaemonParams) (*ledger.Table, error) {
	if params.TestAccountsFile != "" {
		accounts, err := testaccounts.Load(params.TestAccountsFile)
		if err != nil {
			return nil, err
		}
		return ledger.FromList(accounts), nil
	}
	size := params.TableSize
	if size <= 0 {
		size = constants.DefaultTableSize
	}
	return ledger.New(size), nil
}

// Join blocks until the daemon's context is cancelled, then runs the
// same cleanup as Shutdown and returns the first error any stage
// recorded. A caller that never cancels its context must call
// Shutdown directly instead.
func (d *Daemon) Join() error {
	stageErr := d.rt.Join() // otp.Runtime.Join blocks, then calls its own Shutdown
	return d.finishShutdown(stageErr)
}

// Shutdown stops every stage and closes the daemon's sockets.
func (d *Daemon) Shutdown() error {
	return d.finishShutdown(d.rt.Shutdown())
}

func (d *Daemon) finishShutdown(err error) error {
	if d.metrics != nil {
		d.metrics.Stop()
	}
	if closeErr := d.conn.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if closeErr := d.senderConn.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return WrapError("loom.Daemon.Shutdown", err)
	}
	return nil
}

// Metrics returns the daemon's built-in metrics, nil if a custom
// Observer was supplied in Options (the built-in Metrics is only
// constructed when the default Observer is used).
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// Addr returns the daemon's bound local address.
func (d *Daemon) Addr() net.Addr {
	return d.conn.LocalAddr()
}

// Table exposes the account table, mainly for tests and for admin
// tooling built on top of this package.
func (d *Daemon) Table() *ledger.Table {
	return d.table
}
