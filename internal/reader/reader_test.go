package reader

import (
	"net"
	"testing"
	"time"

	"github.com/sakridge/loom/internal/batch"
	"github.com/sakridge/loom/internal/otp"
	"github.com/sakridge/loom/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestReaderForwardsReceivedBatch(t *testing.T) {
	conn := bindLoopback(t)
	r := New(conn)

	cli, err := net.DialUDP("udp4", nil, conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer cli.Close()

	var msg wire.Message
	msg.Pld.Kind = wire.KindTransaction
	msg.Pld.Data.SetTransaction(wire.Transaction{Amount: 1000})
	_, err = cli.Write(msg.MarshalBinary())
	require.NoError(t, err)

	rt := otp.New()
	delivered := make(chan otp.SharedMessages, 1)
	require.NoError(t, rt.Listen(otp.State, func(rt *otp.Runtime, d otp.Data) error {
		if sm, ok := d.(otp.SharedMessages); ok {
			delivered <- sm
		}
		return nil
	}))
	defer rt.Shutdown()

	require.NoError(t, r.Run(rt))

	select {
	case sm := <-delivered:
		sm.Batch.View(func(m *batch.Messages) {
			require.Len(t, m.Msgs, 1)
			assert.Equal(t, wire.KindTransaction, m.Msgs[0].Pld.Kind)
			assert.Equal(t, uint64(1000), m.Msgs[0].Pld.Data.AsTransaction(wire.KindTransaction).Amount)
		})
	case <-time.After(2 * time.Second):
		t.Fatal("reader never forwarded the batch to State")
	}
}

func TestReaderReleasesOnEmptyRead(t *testing.T) {
	conn := bindLoopback(t)
	r := New(conn)

	rt := otp.New()
	require.NoError(t, rt.Listen(otp.State, func(*otp.Runtime, otp.Data) error {
		t.Fatal("State should not receive anything on an empty read")
		return nil
	}))
	defer rt.Shutdown()

	done := make(chan error, 1)
	go func() { done <- r.Run(rt) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after the read timeout")
	}
}

// A short, unparseable datagram must not be mistaken for whatever
// message previously occupied that batch slot in a recycled Messages.
func TestReadBatchBlanksSlotOnShortDatagram(t *testing.T) {
	conn := bindLoopback(t)
	r := New(conn)

	cli, err := net.DialUDP("udp4", nil, conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer cli.Close()

	_, err = cli.Write([]byte("short"))
	require.NoError(t, err)

	m := r.pool.Get()
	var stale wire.Message
	stale.Pld.Kind = wire.KindTransaction
	stale.Pld.Data.SetTransaction(wire.Transaction{Amount: 999})
	m.Msgs[0] = stale

	n, err := r.readBatch(m)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	assert.Equal(t, wire.Message{}, m.Msgs[0], "a short datagram must blank the slot, not leave the prior message in place")
	assert.Equal(t, 0, m.Data[0].Len)
}

func TestRecyclePushesBatchBackToFreeList(t *testing.T) {
	conn := bindLoopback(t)
	r := New(conn)

	m := r.pool.Get()
	shared := batch.NewShared(m)

	rt := otp.New()
	require.NoError(t, r.Recycle(rt, otp.SharedMessages{Batch: shared}))

	reused := r.pool.Get()
	assert.Same(t, m, reused)
}
