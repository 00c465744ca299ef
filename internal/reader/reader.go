// Package reader implements the UDP ingest stage: a single socket
// read fills one recycled batch per call, using the platform's
// read-many-datagrams primitive instead of one syscall per packet.
package reader

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sakridge/loom/internal/batch"
	"github.com/sakridge/loom/internal/constants"
	"github.com/sakridge/loom/internal/interfaces"
	"github.com/sakridge/loom/internal/otp"
	"github.com/sakridge/loom/internal/wire"
)

// Observer is the instrumentation surface the reader stage calls into.
type Observer = interfaces.Observer

type noopObserver struct{}

func (noopObserver) ObserveBatchRead(int, uint64, uint64) {}
func (noopObserver) ObserveTransaction(bool)              {}
func (noopObserver) ObserveBalanceQuery(bool)             {}
func (noopObserver) ObserveRehash(int)                    {}
func (noopObserver) ObserveDrop(string)                   {}

// Reader owns the bound UDP socket and the batch free list. The same
// Reader handle backs both the Reader source closure and the Recycle
// listener closure, so the free list has a single owner no matter
// which port touches it; there is no ownership cycle in the data
// itself, only in which closures share the pointer.
type Reader struct {
	conn     *net.UDPConn
	pool     *batch.Pool
	observer Observer
}

// New wraps a bound UDP connection with no instrumentation. The free
// list starts empty: batches are created on demand by the pool.
func New(conn *net.UDPConn) *Reader {
	return NewWithObserver(conn, noopObserver{})
}

// NewWithObserver wraps conn and reports batch-read and drop events to
// observer. A nil observer is replaced with a no-op one.
func NewWithObserver(conn *net.UDPConn, observer Observer) *Reader {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Reader{conn: conn, pool: batch.NewPool(), observer: observer}
}

// Sender duplicates the socket file descriptor so a Sender stage can
// transmit replies from the same local address the node listens on.
func (r *Reader) Sender() (*net.UDPConn, error) {
	raw, err := r.conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("reader.sender: %w", err)
	}

	var dupFd int
	var dupErr error
	if ctrlErr := raw.Control(func(fd uintptr) {
		dupFd, dupErr = unix.Dup(int(fd))
	}); ctrlErr != nil {
		return nil, fmt.Errorf("reader.sender: %w", ctrlErr)
	}
	if dupErr != nil {
		return nil, fmt.Errorf("reader.sender: dup: %w", dupErr)
	}

	f := os.NewFile(uintptr(dupFd), "loom-sender")
	defer f.Close()
	fc, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("reader.sender: fileconn: %w", err)
	}
	udpConn, ok := fc.(*net.UDPConn)
	if !ok {
		fc.Close()
		return nil, fmt.Errorf("reader.sender: duplicated fd is not a UDP socket")
	}
	return udpConn, nil
}

// Run is the Source callback for port Reader: allocate-or-reuse a
// batch, read one round of datagrams, classify the outcome, and
// forward on State or release to the free list.
func (r *Reader) Run(rt *otp.Runtime) error {
	m := r.pool.Get()

	start := time.Now()
	n, readErr := r.readBatch(m)
	if readErr != nil {
		// Timeouts are the normal pacing mechanism; other IO errors are
		// still just dropped here, not surfaced as stage errors, matching
		// the classification in the component design.
		r.observer.ObserveDrop("reader: " + readErr.Error())
		r.pool.Put(m)
		return nil
	}
	if n == 0 {
		r.pool.Put(m)
		return nil
	}

	r.observer.ObserveBatchRead(n, uint64(n)*wire.MessageSize, uint64(time.Since(start)))

	m.Truncate(n)
	shared := batch.NewShared(m)
	if err := rt.Send(otp.State, otp.SharedMessages{Batch: shared}); err != nil {
		r.pool.Put(m)
		return err
	}
	return nil
}

// Recycle is the Listen callback for port Recycle: push the batch
// back onto the free list unconditionally, regardless of what State
// did with it.
func (r *Reader) Recycle(rt *otp.Runtime, d otp.Data) error {
	sm, ok := d.(otp.SharedMessages)
	if !ok {
		return nil
	}
	sm.Batch.With(func(m *batch.Messages) {
		r.pool.Put(m)
	})
	return nil
}

// readBatch fills m with up to len(m.Data) datagrams in one syscall
// round, returning the number of datagrams actually received.
func (r *Reader) readBatch(m *batch.Messages) (int, error) {
	n := len(m.Data)
	bufs := make([][]byte, n)
	for i := range bufs {
		bufs[i] = make([]byte, constants.MaxPacket)
	}

	names := make([][]byte, n)
	iovs := make([]unix.Iovec, n)
	hdrs := make([]unix.Mmsghdr, n)
	for i := 0; i < n; i++ {
		iovs[i].Base = &bufs[i][0]
		iovs[i].SetLen(len(bufs[i]))
		names[i] = make([]byte, unix.SizeofSockaddrInet6)
		hdrs[i].Hdr.Name = &names[i][0]
		hdrs[i].Hdr.Namelen = uint32(len(names[i]))
		hdrs[i].Hdr.Iov = &iovs[i]
		hdrs[i].Hdr.SetIovlen(1)
	}

	if err := r.conn.SetReadDeadline(time.Now().Add(constants.ReaderReadTimeout)); err != nil {
		return 0, err
	}

	raw, err := r.conn.SyscallConn()
	if err != nil {
		return 0, err
	}

	var received int
	var recvErr error
	ctrlErr := raw.Read(func(fd uintptr) bool {
		received, recvErr = unix.Recvmmsg(int(fd), hdrs, unix.MSG_DONTWAIT, nil)
		return recvErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	if recvErr != nil {
		return 0, recvErr
	}

	for i := 0; i < received; i++ {
		dlen := int(hdrs[i].Len)
		if err := wire.UnmarshalBinaryMessage(bufs[i][:dlen], &m.Msgs[i]); err != nil {
			// A batch slot may hold a stale message from the last time this
			// recycled *Messages was used; a short or malformed datagram
			// must blank it out rather than leave that stale message to be
			// replayed as if newly received.
			m.Msgs[i] = wire.Message{}
			m.Data[i] = batch.Datagram{Addr: netip.AddrPort{}}
			continue
		}
		addr, _ := parseSockaddr(names[i][:hdrs[i].Hdr.Namelen])
		m.Data[i] = batch.Datagram{Len: dlen, Addr: addr}
	}
	return received, nil
}

// parseSockaddr decodes a raw sockaddr_in/sockaddr_in6 image into a
// netip.AddrPort, reading only the address-family-dependent fields
// recvmmsg writes back.
func parseSockaddr(b []byte) (netip.AddrPort, error) {
	if len(b) < 4 {
		return netip.AddrPort{}, fmt.Errorf("reader: short sockaddr (%d bytes)", len(b))
	}
	family := binary.LittleEndian.Uint16(b[0:2])
	switch family {
	case unix.AF_INET:
		if len(b) < 8 {
			return netip.AddrPort{}, fmt.Errorf("reader: short sockaddr_in")
		}
		port := binary.BigEndian.Uint16(b[2:4])
		var ip [4]byte
		copy(ip[:], b[4:8])
		return netip.AddrPortFrom(netip.AddrFrom4(ip), port), nil
	case unix.AF_INET6:
		if len(b) < 24 {
			return netip.AddrPort{}, fmt.Errorf("reader: short sockaddr_in6")
		}
		port := binary.BigEndian.Uint16(b[2:4])
		var ip [16]byte
		copy(ip[:], b[8:24])
		return netip.AddrPortFrom(netip.AddrFrom16(ip), port), nil
	default:
		return netip.AddrPort{}, fmt.Errorf("reader: unknown sockaddr family %d", family)
	}
}
