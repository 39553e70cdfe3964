package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a message on the wire means. The set is closed;
// values are fixed because they travel between independently built peers.
type Kind int

const (
	KindPing              Kind = 0
	KindJoin              Kind = 1
	KindLeave             Kind = 2
	KindSetUsername       Kind = 3
	KindUsernameTaken     Kind = 4
	KindUsernameAvailable Kind = 5
	KindFetchMessages     Kind = 6
	KindClearToSend       Kind = 7
	KindMessage           Kind = 32
)

// Valid reports whether k is one of the known wire values.
func (k Kind) Valid() bool {
	switch k {
	case KindPing, KindJoin, KindLeave, KindSetUsername, KindUsernameTaken,
		KindUsernameAvailable, KindFetchMessages, KindClearToSend, KindMessage:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "Ping"
	case KindJoin:
		return "Join"
	case KindLeave:
		return "Leave"
	case KindSetUsername:
		return "SetUsername"
	case KindUsernameTaken:
		return "UsernameTaken"
	case KindUsernameAvailable:
		return "UsernameAvailable"
	case KindFetchMessages:
		return "FetchMessages"
	case KindClearToSend:
		return "ClearToSend"
	case KindMessage:
		return "Message"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Message is one chat event. It is a value type: once built it is never
// mutated, only copied. Sender may be empty for server-originated control
// messages; Body may be empty for control kinds.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"username"`
	Body      string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Kind      Kind   `json:"type"`
}

// New builds a Message stamped with the current wall clock. Delivery order,
// not the timestamp, is authoritative for ordering; the timestamp exists for
// display only.
func New(kind Kind, sender, body string) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Body:      body,
		Timestamp: time.Now().UnixNano(),
		Kind:      kind,
	}
}

// Time converts the wire timestamp back to a wall-clock instant.
func (m Message) Time() time.Time {
	return time.Unix(0, m.Timestamp)
}

// Render returns the canonical console form of the message. Rendering is
// presentation-only and never affects wire bytes.
func (m Message) Render() string {
	switch m.Kind {
	case KindPing:
		return fmt.Sprintf("Ping: %dms", time.Since(m.Time()).Milliseconds())
	case KindMessage:
		return fmt.Sprintf("[%s @ %s]: %s", m.Time().Format("03:04:05 PM"), m.Sender, m.Body)
	case KindJoin:
		return fmt.Sprintf("[SERVER]: %s joined the chat", m.Sender)
	case KindLeave:
		return fmt.Sprintf("[SERVER]: %s left the chat", m.Sender)
	case KindSetUsername:
		return fmt.Sprintf("[SERVER]: username to %s", m.Sender)
	case KindUsernameAvailable:
		return fmt.Sprintf("[SERVER]: %s is available", m.Sender)
	case KindUsernameTaken:
		return fmt.Sprintf("[SERVER]: %s is not available", m.Sender)
	}
	return m.Kind.String()
}
