package chat

import "github.com/andrew264/quickchat/internal/protocol"

// History is the ordered log of delivered chat and lifecycle messages. It is
// owned by the registry goroutine, which is the only code that touches it;
// append order therefore always matches broadcast delivery order, and no
// lock of its own is needed.
type History struct {
	limit int
	msgs  []protocol.Message
}

// NewHistory builds a log that retains at most limit messages, dropping the
// oldest first. limit <= 0 means unbounded.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

func (h *History) Len() int {
	return len(h.msgs)
}

func (h *History) Append(m protocol.Message) {
	if h.limit > 0 && len(h.msgs) == h.limit {
		h.msgs = h.msgs[1:]
	}
	h.msgs = append(h.msgs, m)
}

// Snapshot returns an independent ordered copy of the log.
func (h *History) Snapshot() []protocol.Message {
	out := make([]protocol.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}
