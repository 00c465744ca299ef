// Package wire defines loom's fixed-layout on-wire structs and their
// explicit little-endian codec. Every type here has no padding and an
// identical byte layout on 32- and 64-bit targets; sizes are part of
// the contract, enforced with compile-time assertions.
package wire

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Kind selects the active arm of a Payload's Data union.
type Kind uint8

const (
	KindInvalid      Kind = 0
	KindTransaction  Kind = 1
	KindSignature    Kind = 2
	KindSubscribe    Kind = 3
	KindGetLedger    Kind = 4
	KindCheckBalance Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "Invalid"
	case KindTransaction:
		return "Transaction"
	case KindSignature:
		return "Signature"
	case KindSubscribe:
		return "Subscribe"
	case KindGetLedger:
		return "GetLedger"
	case KindCheckBalance:
		return "CheckBalance"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// State is the per-message wire flag the State stage sets during
// transfer and balance-query processing. Senders MUST transmit
// StateUnknown; the field is zeroed in the signed preimage.
type State uint8

const (
	StateUnknown   State = 0
	StateWithdrawn State = 1
	StateDeposited State = 2
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateWithdrawn:
		return "Withdrawn"
	case StateDeposited:
		return "Deposited"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Transaction requests a deposit of Amount at To, funded by the
// enclosing Payload's From and Fee.
type Transaction struct {
	To     [32]byte
	Amount uint64
}

var _ [40]byte = [unsafe.Sizeof(Transaction{})]byte{}

// POH carries a proof-of-history hash and counter. Present on the
// wire for signature-kind messages; not processed by the state stage.
type POH struct {
	Hash    [32]byte
	Counter uint64
}

var _ [40]byte = [unsafe.Sizeof(POH{})]byte{}

// Subscriber registers interest in ledger updates. Reserved; unused
// by the state stage.
type Subscriber struct {
	Key  [32]byte
	Addr [4]byte
	Port uint16
}

var _ [38]byte = [unsafe.Sizeof(Subscriber{})]byte{}

// GetLedger requests a range of ledger history. Reserved; unused by
// the state stage.
type GetLedger struct {
	Start uint64
	Num   uint64
}

var _ [16]byte = [unsafe.Sizeof(GetLedger{})]byte{}

// CheckBalance asks for the balance of Key. On request Amount is 0;
// on reply it carries the balance the state stage wrote back.
type CheckBalance struct {
	Key    [32]byte
	Amount uint64
}

var _ [40]byte = [unsafe.Sizeof(CheckBalance{})]byte{}

// messageDataSize is the size of the largest union arm (Transaction,
// POH, and CheckBalance all weigh in at 40 bytes).
const messageDataSize = 40

// MessageData is a fixed-size union region whose active interpretation
// is selected by the enclosing Payload's Kind. Accessors assert Kind
// matches the requested arm; reading or writing the wrong arm is a
// programmer error.
type MessageData [messageDataSize]byte

var _ [40]byte = [unsafe.Sizeof(MessageData{})]byte{}

func mustKind(got, want Kind) {
	if got != want {
		panic(fmt.Sprintf("wire: MessageData arm %s accessed, kind is %s", want, got))
	}
}

// AsTransaction interprets d as a Transaction. kind must be KindTransaction.
func (d *MessageData) AsTransaction(kind Kind) Transaction {
	mustKind(kind, KindTransaction)
	var t Transaction
	copy(t.To[:], d[0:32])
	t.Amount = binary.LittleEndian.Uint64(d[32:40])
	return t
}

// SetTransaction encodes t into d.
func (d *MessageData) SetTransaction(t Transaction) {
	copy(d[0:32], t.To[:])
	binary.LittleEndian.PutUint64(d[32:40], t.Amount)
}

// AsPOH interprets d as a POH. kind must be KindSignature.
func (d *MessageData) AsPOH(kind Kind) POH {
	mustKind(kind, KindSignature)
	var p POH
	copy(p.Hash[:], d[0:32])
	p.Counter = binary.LittleEndian.Uint64(d[32:40])
	return p
}

// SetPOH encodes p into d.
func (d *MessageData) SetPOH(p POH) {
	copy(d[0:32], p.Hash[:])
	binary.LittleEndian.PutUint64(d[32:40], p.Counter)
}

// AsSubscriber interprets d as a Subscriber. kind must be KindSubscribe.
func (d *MessageData) AsSubscriber(kind Kind) Subscriber {
	mustKind(kind, KindSubscribe)
	var s Subscriber
	copy(s.Key[:], d[0:32])
	copy(s.Addr[:], d[32:36])
	s.Port = binary.LittleEndian.Uint16(d[36:38])
	return s
}

// SetSubscriber encodes s into d.
func (d *MessageData) SetSubscriber(s Subscriber) {
	copy(d[0:32], s.Key[:])
	copy(d[32:36], s.Addr[:])
	binary.LittleEndian.PutUint16(d[36:38], s.Port)
}

// AsGetLedger interprets d as a GetLedger. kind must be KindGetLedger.
func (d *MessageData) AsGetLedger(kind Kind) GetLedger {
	mustKind(kind, KindGetLedger)
	var g GetLedger
	g.Start = binary.LittleEndian.Uint64(d[0:8])
	g.Num = binary.LittleEndian.Uint64(d[8:16])
	return g
}

// SetGetLedger encodes g into d.
func (d *MessageData) SetGetLedger(g GetLedger) {
	binary.LittleEndian.PutUint64(d[0:8], g.Start)
	binary.LittleEndian.PutUint64(d[8:16], g.Num)
}

// AsCheckBalance interprets d as a CheckBalance. kind must be KindCheckBalance.
func (d *MessageData) AsCheckBalance(kind Kind) CheckBalance {
	mustKind(kind, KindCheckBalance)
	var c CheckBalance
	copy(c.Key[:], d[0:32])
	c.Amount = binary.LittleEndian.Uint64(d[32:40])
	return c
}

// SetCheckBalance encodes c into d.
func (d *MessageData) SetCheckBalance(c CheckBalance) {
	copy(d[0:32], c.Key[:])
	binary.LittleEndian.PutUint64(d[32:40], c.Amount)
}

// Payload is the signable body of a Message. State and Unused are
// zero in the signed preimage: the signer writes them zero before
// signing, and the verifier treats them as zero.
type Payload struct {
	From     [32]byte
	LVH      [32]byte
	LVHCount uint64
	Fee      uint64
	Data     MessageData
	Version  uint32
	Kind     Kind
	State    State
	Unused   uint16
}

var _ [128]byte = [unsafe.Sizeof(Payload{})]byte{}

// Message is the exact byte image transmitted as one UDP datagram.
type Message struct {
	Pld Payload
	Sig [64]byte
}

var _ [192]byte = [unsafe.Sizeof(Message{})]byte{}

// MessageSize is the exact wire size of a Message, in bytes.
const MessageSize = 192

// Account is a (public key, balance) record in the account table. A
// zero-byte From marks an unused slot; no legitimate public key is
// all zeros.
type Account struct {
	From    [32]byte
	Balance uint64
}

var _ [40]byte = [unsafe.Sizeof(Account{})]byte{}

// Empty reports whether a is an unused account slot.
func (a Account) Empty() bool {
	return a.From == [32]byte{}
}

// HashKey hashes a 32-byte public key by interpreting its first 8
// bytes as a big-endian uint64, matching the reference node exactly.
func HashKey(key [32]byte) uint64 {
	return binary.BigEndian.Uint64(key[:8])
}

// MarshalBinary encodes p into its 128-byte little-endian wire image.
func (p *Payload) MarshalBinary() []byte {
	buf := make([]byte, 128)
	copy(buf[0:32], p.From[:])
	copy(buf[32:64], p.LVH[:])
	binary.LittleEndian.PutUint64(buf[64:72], p.LVHCount)
	binary.LittleEndian.PutUint64(buf[72:80], p.Fee)
	copy(buf[80:120], p.Data[:])
	binary.LittleEndian.PutUint32(buf[120:124], p.Version)
	buf[124] = byte(p.Kind)
	buf[125] = byte(p.State)
	binary.LittleEndian.PutUint16(buf[126:128], p.Unused)
	return buf
}

// UnmarshalBinaryPayload decodes a 128-byte wire image into p.
func UnmarshalBinaryPayload(data []byte, p *Payload) error {
	if len(data) < 128 {
		return ErrInsufficientData
	}
	copy(p.From[:], data[0:32])
	copy(p.LVH[:], data[32:64])
	p.LVHCount = binary.LittleEndian.Uint64(data[64:72])
	p.Fee = binary.LittleEndian.Uint64(data[72:80])
	copy(p.Data[:], data[80:120])
	p.Version = binary.LittleEndian.Uint32(data[120:124])
	p.Kind = Kind(data[124])
	p.State = State(data[125])
	p.Unused = binary.LittleEndian.Uint16(data[126:128])
	return nil
}

// MarshalBinary encodes m into its 192-byte little-endian wire image.
func (m *Message) MarshalBinary() []byte {
	buf := make([]byte, 192)
	copy(buf[0:128], m.Pld.MarshalBinary())
	copy(buf[128:192], m.Sig[:])
	return buf
}

// UnmarshalBinaryMessage decodes a 192-byte wire image into m.
func UnmarshalBinaryMessage(data []byte, m *Message) error {
	if len(data) < 192 {
		return ErrInsufficientData
	}
	if err := UnmarshalBinaryPayload(data[0:128], &m.Pld); err != nil {
		return err
	}
	copy(m.Sig[:], data[128:192])
	return nil
}

// MarshalError is the error type for wire decode failures.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

const ErrInsufficientData MarshalError = "wire: insufficient data to unmarshal"
