package chat

import (
	"net"

	"github.com/andrew264/quickchat/internal/protocol"
)

// StartOutboundWriter drains the outbox onto the connection as frames until
// the channel closes or the connection breaks.
func StartOutboundWriter(conn net.Conn, out <-chan protocol.Message) {
	go func() {
		enc := protocol.NewEncoder(conn)
		for msg := range out {
			if err := enc.Encode(msg); err != nil {
				// The connection is gone, but producers may still hold a
				// blocking send on the outbox; keep consuming until the
				// registry closes it.
				for range out {
				}
				return
			}
		}
	}()
}
