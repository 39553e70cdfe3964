package chat

import (
	"net"

	"github.com/andrew264/quickchat/internal/protocol"
)

// Session is the server-side state for one live client connection. Its
// identity is ID (the peer address captured at accept), never the username.
// Username is owned by the registry goroutine; nothing else reads or writes
// it after registration.
type Session struct {
	ID       string
	Conn     net.Conn
	Username string
	Out      chan protocol.Message // outbound frames, drained by the writer goroutine

	// Replay bookkeeping, owned by the registry goroutine. While syncing is
	// set a replay goroutine feeds Out and live traffic parks in pending;
	// departed defers closing Out until the replay goroutine is done.
	syncing  bool
	departed bool
	pending  []protocol.Message
}

type EventType int

const (
	EventRegister EventType = iota
	EventUnregister
	EventClaimUsername
	EventBroadcast
	EventFetchHistory
	EventSyncDone
	EventPing
)

func (t EventType) String() string {
	switch t {
	case EventRegister:
		return "register"
	case EventUnregister:
		return "unregister"
	case EventClaimUsername:
		return "claim"
	case EventBroadcast:
		return "broadcast"
	case EventFetchHistory:
		return "fetch"
	case EventSyncDone:
		return "syncdone"
	case EventPing:
		return "ping"
	}
	return "unknown"
}

type Event struct {
	Type          EventType
	Session       *Session
	Username      string
	Message       protocol.Message
	ExcludeOrigin bool
	ReplyChan     chan error // used by claim to ack success/failure
}

var (
	ErrUsernameTaken    = errorString("username_taken")
	ErrUsernameInvalid  = errorString("username_invalid")
	ErrUsernameReserved = errorString("username_reserved")
)

type errorString string

func (e errorString) Error() string { return string(e) }
