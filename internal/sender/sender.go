// Package sender implements the outbound reply stage: one UDP
// datagram per SendMessage, a single blocking send with an explicit
// error return rather than a busy-spin retry loop.
package sender

import (
	"fmt"
	"net"

	"github.com/sakridge/loom/internal/otp"
)

// Sender owns a UDP socket dup'd from the Reader's, used only to
// transmit replies.
type Sender struct {
	conn *net.UDPConn
}

// New wraps conn for outbound sends.
func New(conn *net.UDPConn) *Sender {
	return &Sender{conn: conn}
}

// Run is the Listen callback for port Sender: on SendMessage, marshal
// the message and send exactly one datagram to its address.
func (s *Sender) Run(rt *otp.Runtime, d otp.Data) error {
	sm, ok := d.(otp.SendMessage)
	if !ok {
		return nil
	}

	buf := sm.Msg.MarshalBinary()
	n, err := s.conn.WriteToUDPAddrPort(buf, sm.Addr)
	if err != nil {
		return fmt.Errorf("sender.run: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("sender.run: short write %d of %d bytes", n, len(buf))
	}
	return nil
}
