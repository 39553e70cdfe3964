// Package protocol defines the chat wire format: a JSON-encoded Message per
// frame, each frame prefixed by a 4-byte big-endian payload length. The
// length prefix makes the stream self-delimiting, so TCP fragmentation and
// coalescing are invisible above the Decoder.
package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame payload. Anything larger is treated as
// a protocol violation, not a transport failure.
const MaxFrameSize = 1 << 20

var (
	// ErrMalformedFrame marks a complete frame whose payload did not decode.
	// The stream stays in sync; the caller may keep reading.
	ErrMalformedFrame = errors.New("protocol: malformed frame payload")

	// ErrFrameTooLarge marks a frame whose declared length exceeds
	// MaxFrameSize. The payload is consumed so the caller may keep reading.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds size limit")
)

// Recoverable reports whether a Decode error leaves the stream usable.
// Transport errors and mid-frame truncation are terminal; payload-level
// problems are not.
func Recoverable(err error) bool {
	return errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrFrameTooLarge)
}

// Encoder writes length-prefixed frames onto a stream. It is not safe for
// concurrent use; each connection has exactly one writing goroutine.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes m as one complete frame and flushes.
func (e *Encoder) Encode(m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("protocol: encode: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := e.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := e.w.Write(payload); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder reads length-prefixed frames from a stream, accumulating partial
// reads until a complete frame is available.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode blocks until the next complete frame arrives and returns its
// Message. io.EOF means the peer closed cleanly at a frame boundary;
// io.ErrUnexpectedEOF means the stream died mid-frame. Errors for which
// Recoverable reports true consume the offending frame and leave the
// decoder ready for the next one.
func (d *Decoder) Decode() (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, io.ErrUnexpectedEOF
		}
		return Message{}, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		// Drain the declared payload to stay aligned with the stream.
		if _, err := io.CopyN(io.Discard, d.r, int64(size)); err != nil {
			return Message{}, io.ErrUnexpectedEOF
		}
		return Message{}, ErrFrameTooLarge
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return Message{}, io.ErrUnexpectedEOF
	}

	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return m, nil
}
