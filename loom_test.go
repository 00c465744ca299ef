package loom

import (
	"context"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakridge/loom/internal/constants"
	"github.com/sakridge/loom/internal/wire"
)

func freeUDPPort(t *testing.T) uint16 {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return uint16(port)
}

// loopbackAddr rewrites a wildcard-bound daemon address (0.0.0.0:port)
// into an explicit 127.0.0.1:port a test client can dial.
func loopbackAddr(addr net.Addr) *net.UDPAddr {
	port := addr.(*net.UDPAddr).Port
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func key(b byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func writeTestAccounts(t *testing.T, accounts map[[32]byte]uint32) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")

	var sb []byte
	sb = append(sb, '[')
	first := true
	for pk, balance := range accounts {
		if !first {
			sb = append(sb, ',')
		}
		first = false
		var limbs [4]uint64
		for i := 0; i < 4; i++ {
			limbs[i] = binary.LittleEndian.Uint64(pk[i*8 : i*8+8])
		}
		sb = append(sb, []byte(
			"{\"pubkey\":["+itoa(limbs[0])+","+itoa(limbs[1])+","+itoa(limbs[2])+","+itoa(limbs[3])+"],\"balance\":"+itoa(uint64(balance))+"}",
		)...)
	}
	sb = append(sb, ']')

	require.NoError(t, os.WriteFile(path, sb, 0o644))
	return path
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// S1 end-to-end: a transaction sent over real loopback UDP lands as a
// balance change, observable via a CheckBalance reply.
func TestDaemonEndToEndTransferAndBalanceQuery(t *testing.T) {
	from, to := key(0xFF), key(0x01)
	path := writeTestAccounts(t, map[[32]byte]uint32{from: 1_000_000_000})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := DefaultParams(freeUDPPort(t))
	params.TestAccountsFile = path
	daemon, err := NewDaemon(ctx, params, nil)
	require.NoError(t, err)
	defer daemon.Shutdown()

	cli, err := net.DialUDP("udp4", nil, loopbackAddr(daemon.Addr()))
	require.NoError(t, err)
	defer cli.Close()

	var tx wire.Message
	tx.Pld.From = from
	tx.Pld.Fee = 1
	tx.Pld.Kind = wire.KindTransaction
	tx.Pld.Data.SetTransaction(wire.Transaction{To: to, Amount: 1000})
	_, err = cli.Write(tx.MarshalBinary())
	require.NoError(t, err)

	// Give the pipeline a moment to process the transfer before querying.
	time.Sleep(50 * time.Millisecond)

	var cb wire.Message
	cb.Pld.From = to
	cb.Pld.Fee = 0
	cb.Pld.Kind = wire.KindCheckBalance
	cb.Pld.Data.SetCheckBalance(wire.CheckBalance{Key: to})
	_, err = cli.Write(cb.MarshalBinary())
	require.NoError(t, err)

	buf := make([]byte, 512)
	require.NoError(t, cli.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := cli.Read(buf)
	require.NoError(t, err)

	var reply wire.Message
	require.NoError(t, wire.UnmarshalBinaryMessage(buf[:n], &reply))
	assert.Equal(t, wire.KindCheckBalance, reply.Pld.Kind)
	assert.Equal(t, uint64(1000), reply.Pld.Data.AsCheckBalance(wire.KindCheckBalance).Amount)
}

// S3 end-to-end: insufficient funds is dropped silently, no reply.
func TestDaemonEndToEndInsufficientFundsDrops(t *testing.T) {
	from, to := key(0xAA), key(0x02)
	path := writeTestAccounts(t, map[[32]byte]uint32{from: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := DefaultParams(freeUDPPort(t))
	params.TestAccountsFile = path
	daemon, err := NewDaemon(ctx, params, nil)
	require.NoError(t, err)
	defer daemon.Shutdown()

	cli, err := net.DialUDP("udp4", nil, loopbackAddr(daemon.Addr()))
	require.NoError(t, err)
	defer cli.Close()

	var tx wire.Message
	tx.Pld.From = from
	tx.Pld.Fee = 1
	tx.Pld.Kind = wire.KindTransaction
	tx.Pld.Data.SetTransaction(wire.Transaction{To: to, Amount: 100})
	_, err = cli.Write(tx.MarshalBinary())
	require.NoError(t, err)

	require.NoError(t, cli.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	buf := make([]byte, 512)
	_, err = cli.Read(buf)
	assert.Error(t, err, "no reply is ever sent for a bare transaction, regardless of outcome")
}

// A daemon with no bootstrap file starts with an empty table of the
// configured size and shuts down cleanly.
func TestDaemonStartsEmptyAndShutsDownCleanly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := DefaultParams(freeUDPPort(t))
	daemon, err := NewDaemon(ctx, params, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, daemon.Table().Used())
	assert.NoError(t, daemon.Shutdown())
}

// Cancelling the daemon's context wakes Join.
func TestDaemonJoinReturnsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	params := DefaultParams(freeUDPPort(t))
	daemon, err := NewDaemon(ctx, params, nil)
	require.NoError(t, err)

	joinErr := make(chan error, 1)
	go func() { joinErr <- daemon.Join() }()

	cancel()

	select {
	case err := <-joinErr:
		assert.NoError(t, err)
	case <-time.After(constants.JoinTimeout):
		t.Fatal("Join did not return within JoinTimeout of context cancellation")
	}
}

func TestNewDaemonRequiresListenPort(t *testing.T) {
	_, err := NewDaemon(context.Background(), DaemonParams{}, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeMissingOption))
}
