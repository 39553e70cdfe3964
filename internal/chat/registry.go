package chat

import (
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/andrew264/quickchat/internal/protocol"
)

// Registry owns the set of live sessions and the history log. Both live
// inside a single event loop goroutine, so registry mutation, history
// append, and broadcast fan-out all share one total order: every session
// observes join/leave/message events in the same sequence, and a history
// snapshot followed by ClearToSend can never interleave with a broadcast.
type Registry struct {
	events  chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	history *History
	logger  *slog.Logger
}

func NewRegistry(buffer int, history *History, logger *slog.Logger) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	if history == nil {
		history = NewHistory(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		events:  make(chan Event, buffer),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		history: history,
		logger:  logger,
	}
}

func (r *Registry) Events() chan<- Event {
	return r.events
}

// Stop signals the Run loop to exit.
func (r *Registry) Stop() {
	close(r.stopCh)
}

// Wait blocks until the Run loop has completely finished.
func (r *Registry) Wait() {
	<-r.doneCh
}

func (r *Registry) Run() {
	defer close(r.doneCh)
	// Single-writer ownership: this map and r.history are only accessed in
	// this goroutine.
	sessions := make(map[string]*Session)

	for {
		select {
		case ev := <-r.events:
			start := time.Now()

			switch ev.Type {
			case EventRegister:
				r.handleRegister(sessions, ev)
				ConnectedSessions.Set(float64(len(sessions)))
			case EventUnregister:
				r.handleUnregister(sessions, ev)
				ConnectedSessions.Set(float64(len(sessions)))
			case EventClaimUsername:
				r.handleClaim(sessions, ev)
			case EventBroadcast:
				r.handleBroadcast(sessions, ev)
			case EventFetchHistory:
				r.handleFetch(ev)
			case EventSyncDone:
				r.handleSyncDone(ev)
			case EventPing:
				r.handlePing(ev)
			}

			EventsTotal.WithLabelValues(ev.Type.String()).Inc()
			EventProcessingDuration.WithLabelValues(ev.Type.String()).Observe(time.Since(start).Seconds())
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) handleRegister(sessions map[string]*Session, ev Event) {
	if ev.Session == nil || ev.Session.ID == "" {
		return
	}
	// One entry per accepted socket; a duplicate ID means the accept loop
	// handed out the same peer address twice.
	if _, exists := sessions[ev.Session.ID]; exists {
		r.logger.Error("duplicate connection id", "session", ev.Session.ID)
		return
	}
	sessions[ev.Session.ID] = ev.Session
	r.logger.Info("session registered", "session", ev.Session.ID)
}

func (r *Registry) handleUnregister(sessions map[string]*Session, ev Event) {
	if ev.Session == nil {
		return
	}
	s, ok := sessions[ev.Session.ID]
	if !ok {
		// Idempotent: the session already left.
		return
	}
	delete(sessions, s.ID)

	// Closing Out stops the writer goroutine gracefully. A replay goroutine
	// may still be feeding Out, so the close waits for its EventSyncDone.
	if s.syncing {
		s.departed = true
	} else {
		close(s.Out)
	}
	r.logger.Info("session left", "session", s.ID, "username", s.Username)

	// Exactly one Leave per session, with whatever name was claimed.
	leave := protocol.New(protocol.KindLeave, s.Username, "")
	r.append(leave)
	for _, peer := range sessions {
		r.deliver(peer, leave)
	}
}

func (r *Registry) handleClaim(sessions map[string]*Session, ev Event) {
	defer func() {
		if ev.ReplyChan != nil {
			close(ev.ReplyChan)
		}
	}()
	reply := func(err error) {
		if ev.ReplyChan != nil {
			ev.ReplyChan <- err
		}
	}

	if ev.Session == nil {
		reply(ErrUsernameInvalid)
		return
	}
	name := strings.TrimSpace(ev.Username)
	if name == "" {
		reply(ErrUsernameInvalid)
		return
	}
	// Uniqueness is case-sensitive and only among sessions that already hold
	// a name; the caller has done format and reserved-word checks.
	taken := lo.ContainsBy(lo.Values(sessions), func(s *Session) bool {
		return s.Username != "" && s.Username == name && s.ID != ev.Session.ID
	})
	if taken {
		reply(ErrUsernameTaken)
		return
	}

	ev.Session.Username = name
	r.logger.Info("username claimed", "session", ev.Session.ID, "username", name)
	reply(nil)
}

func (r *Registry) handleBroadcast(sessions map[string]*Session, ev Event) {
	if ev.Session == nil {
		return
	}
	r.append(ev.Message)
	for _, peer := range sessions {
		if ev.ExcludeOrigin && peer.ID == ev.Session.ID {
			continue
		}
		r.deliver(peer, ev.Message)
	}
}

// handleFetch replays the history snapshot to the requester and terminates
// it with ClearToSend. The snapshot is taken inside the event loop, so it is
// atomic with respect to broadcasts; delivery happens on a dedicated replay
// goroutine with blocking sends, so the replay never loses frames to a full
// outbox. Until the goroutine reports back, live traffic for the requester
// parks in Session.pending, keeping snapshot + ClearToSend a consistent
// prefix of its stream.
func (r *Registry) handleFetch(ev Event) {
	s := ev.Session
	if s == nil {
		return
	}
	if s.syncing {
		r.logger.Warn("history replay already in flight", "session", s.ID)
		return
	}
	s.syncing = true
	batch := append(r.history.Snapshot(), protocol.New(protocol.KindClearToSend, "", ""))
	r.replay(s, batch)
}

// handleSyncDone finishes a replay round. Traffic that parked while the
// goroutine ran is itself replayed losslessly; the session only returns to
// the best-effort deliver path once a round ends with nothing pending.
func (r *Registry) handleSyncDone(ev Event) {
	s := ev.Session
	if s == nil || !s.syncing {
		return
	}
	if s.departed {
		s.syncing = false
		s.pending = nil
		close(s.Out)
		return
	}
	if len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		r.replay(s, batch)
		return
	}
	s.syncing = false
}

func (r *Registry) replay(s *Session, batch []protocol.Message) {
	go func() {
		for _, m := range batch {
			s.Out <- m
		}
		r.events <- Event{Type: EventSyncDone, Session: s}
	}()
}

// handlePing echoes the probe back unchanged; the client computes latency
// from the original timestamp.
func (r *Registry) handlePing(ev Event) {
	if ev.Session == nil {
		return
	}
	r.deliver(ev.Session, ev.Message)
}

func (r *Registry) append(m protocol.Message) {
	r.history.Append(m)
	HistorySize.Set(float64(r.history.Len()))
}

// deliver is a best-effort write: a full outbox means the client is slow or
// gone, and dropping beats stalling the fan-out loop for everyone else.
// Sessions mid-replay are the exception: their live traffic parks in pending
// so it can follow the replay without gaps or reordering.
func (r *Registry) deliver(s *Session, m protocol.Message) {
	if s.syncing {
		s.pending = append(s.pending, m)
		return
	}
	select {
	case s.Out <- m:
	default:
		DroppedMessages.Inc()
		r.logger.Warn("outbox full, dropping message", "session", s.ID, "kind", m.Kind.String())
	}
}
