package wire

import (
	"unsafe"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizes(t *testing.T) {
	assert.EqualValues(t, 40, unsafe.Sizeof(Transaction{}))
	assert.EqualValues(t, 40, unsafe.Sizeof(Account{}))
	assert.EqualValues(t, 128, len((&Payload{}).MarshalBinary()))
	assert.EqualValues(t, 192, len((&Message{}).MarshalBinary()))
}

func TestHashKeyBigEndianPrefix(t *testing.T) {
	var key [32]byte
	key[0] = 0x01
	key[7] = 0xFF

	got := HashKey(key)
	want := uint64(0x01000000_00000000) | 0xFF
	assert.Equal(t, want, got)
}

func TestMessageRoundTrip(t *testing.T) {
	var m Message
	m.Pld.From[0] = 0xAA
	m.Pld.LVH[3] = 0x05
	m.Pld.LVHCount = 42
	m.Pld.Fee = 1
	m.Pld.Version = 1
	m.Pld.Kind = KindTransaction
	m.Pld.State = StateUnknown
	m.Pld.Data.SetTransaction(Transaction{To: [32]byte{0x01}, Amount: 1000})
	for i := range m.Sig {
		m.Sig[i] = byte(i)
	}

	encoded := m.MarshalBinary()
	require.Len(t, encoded, 192)

	var decoded Message
	require.NoError(t, UnmarshalBinaryMessage(encoded, &decoded))
	assert.Equal(t, m, decoded)

	tx := decoded.Pld.Data.AsTransaction(decoded.Pld.Kind)
	assert.Equal(t, uint64(1000), tx.Amount)
}

func TestMessageDataArmMismatchPanics(t *testing.T) {
	var d MessageData
	d.SetTransaction(Transaction{Amount: 5})

	assert.Panics(t, func() {
		d.AsCheckBalance(KindTransaction)
	})
}

func TestCheckBalanceArmRoundTrip(t *testing.T) {
	var d MessageData
	key := [32]byte{0x02}
	d.SetCheckBalance(CheckBalance{Key: key, Amount: 0})

	cb := d.AsCheckBalance(KindCheckBalance)
	assert.Equal(t, key, cb.Key)
	assert.Equal(t, uint64(0), cb.Amount)
}

func TestUnmarshalInsufficientData(t *testing.T) {
	var m Message
	err := UnmarshalBinaryMessage(make([]byte, 10), &m)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestAccountEmpty(t *testing.T) {
	var a Account
	assert.True(t, a.Empty())

	a.From[0] = 1
	assert.False(t, a.Empty())
}
