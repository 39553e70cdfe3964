// Package client implements the interactive console client: it negotiates a
// username, replays server history, then relays stdin lines as chat
// messages while rendering live traffic.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gookit/color"

	"github.com/andrew264/quickchat/internal/chat"
	"github.com/andrew264/quickchat/internal/protocol"
)

const (
	// maxNameAttempts bounds the username prompt loop; a misbehaving input
	// source fails out instead of looping forever.
	maxNameAttempts = 5

	negotiationTimeout = 10 * time.Second
)

var (
	ErrTooManyAttempts = errors.New("client: too many username attempts")
	ErrServerGone      = errors.New("client: server closed the connection")
)

type Client struct {
	conn   net.Conn
	enc    *protocol.Encoder
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	username    string
	negotiation chan protocol.Message
	done        chan struct{}
}

func New(conn net.Conn, in io.Reader, out io.Writer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:        conn,
		enc:         protocol.NewEncoder(conn),
		in:          in,
		out:         out,
		logger:      logger,
		negotiation: make(chan protocol.Message, 1),
		done:        make(chan struct{}),
	}
}

// Username returns the negotiated display name, empty until negotiation
// succeeds.
func (c *Client) Username() string {
	return c.username
}

// Run drives the whole client session and blocks until the input source or
// the connection is exhausted.
func (c *Client) Run() error {
	go c.receive()

	scanner := bufio.NewScanner(c.in)
	if err := c.negotiate(scanner); err != nil {
		return err
	}

	if err := c.send(protocol.New(protocol.KindJoin, c.username, "joined the chat")); err != nil {
		return err
	}
	if err := c.send(protocol.New(protocol.KindFetchMessages, c.username, "")); err != nil {
		return err
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit":
			return nil
		case line == "/ping":
			if err := c.send(protocol.New(protocol.KindPing, c.username, "")); err != nil {
				return err
			}
		default:
			if err := c.send(protocol.New(protocol.KindMessage, c.username, line)); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

func (c *Client) negotiate(scanner *bufio.Scanner) error {
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		fmt.Fprint(c.out, "Enter username: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		name := strings.TrimSpace(scanner.Text())

		switch chat.ValidUsername(name) {
		case nil:
		case chat.ErrUsernameReserved:
			fmt.Fprintln(c.out, color.Red.Sprintf("Username cannot be %s", chat.ReservedName))
			continue
		default:
			fmt.Fprintln(c.out, color.Red.Sprint("Username must be 3-20 characters with no spaces"))
			continue
		}

		if err := c.send(protocol.New(protocol.KindSetUsername, name, "")); err != nil {
			return err
		}

		select {
		case msg := <-c.negotiation:
			if msg.Kind == protocol.KindUsernameAvailable {
				c.username = name
				fmt.Fprintln(c.out, color.Green.Sprintf("Username set to %s", name))
				return nil
			}
			fmt.Fprintln(c.out, color.Red.Sprint("Username is already taken"))
		case <-c.done:
			return ErrServerGone
		case <-time.After(negotiationTimeout):
			return errors.New("client: no reply to username request")
		}
	}
	return ErrTooManyAttempts
}

func (c *Client) receive() {
	dec := protocol.NewDecoder(c.conn)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if protocol.Recoverable(err) {
				c.logger.Warn("discarding bad frame from server", "error", err)
				continue
			}
			close(c.done)
			fmt.Fprintln(c.out, color.Red.Sprint("Disconnected from server"))
			return
		}

		switch msg.Kind {
		case protocol.KindMessage:
			fmt.Fprintln(c.out, msg.Render())
		case protocol.KindJoin, protocol.KindLeave:
			fmt.Fprintln(c.out, color.Yellow.Sprint(msg.Render()))
		case protocol.KindPing:
			fmt.Fprintln(c.out, color.Green.Sprint(msg.Render()))
		case protocol.KindClearToSend:
			fmt.Fprintln(c.out, color.Gray.Sprint("--- end of history ---"))
		case protocol.KindUsernameAvailable, protocol.KindUsernameTaken:
			select {
			case c.negotiation <- msg:
			default:
				// Stray reply outside a negotiation round.
			}
		default:
			c.logger.Warn("unknown message kind from server", "kind", msg.Kind.String())
		}
	}
}

func (c *Client) send(m protocol.Message) error {
	if err := c.enc.Encode(m); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	return nil
}
