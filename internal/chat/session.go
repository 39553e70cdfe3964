package chat

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/andrew264/quickchat/internal/protocol"
)

// ReservedName may never be claimed; the server signs lifecycle and control
// traffic with it.
const ReservedName = "SERVER"

var validate = validator.New()

type usernameRequest struct {
	Name string `validate:"required,min=3,max=20"`
}

// ValidUsername checks format and the reserved word. Uniqueness is the
// registry's call; this runs before any registry interaction.
func ValidUsername(name string) error {
	if strings.ContainsFunc(name, unicode.IsSpace) {
		return ErrUsernameInvalid
	}
	if err := validate.Struct(usernameRequest{Name: name}); err != nil {
		return ErrUsernameInvalid
	}
	if strings.EqualFold(name, ReservedName) {
		return ErrUsernameReserved
	}
	return nil
}

type sessionState int

const (
	stateConnecting sessionState = iota
	stateNegotiating
	stateActive
	stateClosed
)

// HandleSession owns one connection's lifecycle: it registers the session,
// decodes frames until the transport dies, and dispatches them to the
// registry. Malformed frames and unknown kinds are skipped; only transport
// failure ends the loop, and it ends it for this session alone.
func HandleSession(s *Session, events chan<- Event, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		_ = s.Conn.Close()
	}()

	StartOutboundWriter(s.Conn, s.Out)
	events <- Event{Type: EventRegister, Session: s}

	dec := protocol.NewDecoder(s.Conn)
	state := stateConnecting

	for state != stateClosed {
		msg, err := dec.Decode()
		if err != nil {
			if protocol.Recoverable(err) {
				logger.Warn("discarding bad frame", "session", s.ID, "error", err)
				continue
			}
			// Peer closed or the transport failed.
			state = stateClosed
			events <- Event{Type: EventUnregister, Session: s}
			continue
		}

		switch {
		case msg.Kind == protocol.KindSetUsername && state != stateActive:
			state = stateNegotiating
			name := strings.TrimSpace(msg.Sender)
			if ValidUsername(name) != nil {
				logger.Warn("rejected username", "session", s.ID, "username", name)
				reply(s, protocol.New(protocol.KindUsernameTaken, name, ""))
				continue
			}
			ack := make(chan error, 1)
			events <- Event{Type: EventClaimUsername, Session: s, Username: name, ReplyChan: ack}
			if err := <-ack; err != nil {
				reply(s, protocol.New(protocol.KindUsernameTaken, name, ""))
				continue
			}
			reply(s, protocol.New(protocol.KindUsernameAvailable, name, ""))
			state = stateActive

		case msg.Kind == protocol.KindPing:
			events <- Event{Type: EventPing, Session: s, Message: msg}

		case state != stateActive:
			logger.Warn("frame before username negotiation", "session", s.ID, "kind", msg.Kind.String())

		case msg.Kind == protocol.KindMessage, msg.Kind == protocol.KindJoin, msg.Kind == protocol.KindLeave:
			events <- Event{Type: EventBroadcast, Session: s, Message: msg, ExcludeOrigin: true}

		case msg.Kind == protocol.KindFetchMessages:
			events <- Event{Type: EventFetchHistory, Session: s}

		default:
			logger.Warn("ignoring unexpected frame", "session", s.ID, "kind", msg.Kind.String())
		}
	}
}

// reply queues a direct answer on the session's own outbox. The send blocks:
// negotiation replies must reach the wire, and the caller is this session's
// read loop, so nothing else is waiting on it.
func reply(s *Session, m protocol.Message) {
	s.Out <- m
}
