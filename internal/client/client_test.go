package client

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew264/quickchat/internal/protocol"
)

// syncWriter makes a buffer safe for the receive goroutine and the prompt
// loop to share.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestClientNegotiatesWithRetryAndChats(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()

	stdin := strings.NewReader("alice\nbob\nhello everyone\n")
	out := &syncWriter{}
	c := New(conn, stdin, out, nil)

	received := make(chan protocol.Message, 16)
	go func() {
		enc := protocol.NewEncoder(server)
		dec := protocol.NewDecoder(server)
		for {
			m, err := dec.Decode()
			if err != nil {
				close(received)
				return
			}
			received <- m
			switch m.Kind {
			case protocol.KindSetUsername:
				if m.Sender == "alice" {
					enc.Encode(protocol.New(protocol.KindUsernameTaken, m.Sender, ""))
				} else {
					enc.Encode(protocol.New(protocol.KindUsernameAvailable, m.Sender, ""))
				}
			case protocol.KindFetchMessages:
				enc.Encode(protocol.New(protocol.KindMessage, "carol", "old news"))
				enc.Encode(protocol.New(protocol.KindClearToSend, "", ""))
			}
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run() }()

	wantKinds := []protocol.Kind{
		protocol.KindSetUsername, // alice, rejected
		protocol.KindSetUsername, // bob, accepted
		protocol.KindJoin,
		protocol.KindFetchMessages,
		protocol.KindMessage,
	}
	for _, want := range wantKinds {
		select {
		case m := <-received:
			require.Equal(t, want, m.Kind)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %v", want)
		}
	}

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not finish after stdin was exhausted")
	}

	assert.Equal(t, "bob", c.Username())

	logged := out.String()
	assert.Contains(t, logged, "Username is already taken")
	assert.Contains(t, logged, "Username set to bob")

	// History rendering happens on the receive goroutine.
	assert.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "old news") && strings.Contains(s, "end of history")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientGivesUpAfterTooManyAttempts(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()

	// Every requested name is reported taken.
	go func() {
		enc := protocol.NewEncoder(server)
		dec := protocol.NewDecoder(server)
		for {
			m, err := dec.Decode()
			if err != nil {
				return
			}
			if m.Kind == protocol.KindSetUsername {
				enc.Encode(protocol.New(protocol.KindUsernameTaken, m.Sender, ""))
			}
		}
	}()

	stdin := strings.NewReader(strings.Repeat("somebody\n", maxNameAttempts+2))
	c := New(conn, stdin, &syncWriter{}, nil)

	err := c.Run()
	require.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestClientValidatesLocallyBeforeAsking(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()

	received := make(chan protocol.Message, 4)
	go func() {
		enc := protocol.NewEncoder(server)
		dec := protocol.NewDecoder(server)
		for {
			m, err := dec.Decode()
			if err != nil {
				return
			}
			received <- m
			if m.Kind == protocol.KindSetUsername {
				enc.Encode(protocol.New(protocol.KindUsernameAvailable, m.Sender, ""))
			}
		}
	}()

	// Bad names are rejected without a round-trip; only "valid" goes out.
	stdin := strings.NewReader("ab\nSERVER\nhas space\nvalid\n")
	out := &syncWriter{}
	c := New(conn, stdin, out, nil)

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run() }()

	select {
	case m := <-received:
		require.Equal(t, protocol.KindSetUsername, m.Kind)
		assert.Equal(t, "valid", m.Sender)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for the only valid request")
	}

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not finish")
	}
	assert.Contains(t, out.String(), "Username cannot be SERVER")
}
