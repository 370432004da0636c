// Package timer implements a TCP request/response timing service.
// A Server answers every message with the time elapsed since the previous
// message on the same connection; a Client sends a fixed number of messages
// and reports the replies. Every blocking socket call carries a deadline so
// both sides observe shutdown within one timeout.
package timer

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Errors returned by connection operations.
var (
	// ErrMessageTooLarge is returned when a message exceeds the codec's maximum size.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Conn is one TCP connection owned by exactly one handler or client.
// Every read and write is bounded by the configured timeout.
type Conn struct {
	rawConn *net.TCPConn
	codec   Codec
	timeout time.Duration
	closed  atomic.Bool
}

func newConn(c *net.TCPConn, opts options) *Conn {
	return &Conn{
		rawConn: c,
		codec:   opts.codec,
		timeout: opts.timeout,
	}
}

// ReadMessage blocks for the next message, at most for the configured timeout.
// It returns io.EOF when the peer has closed its side.
func (c *Conn) ReadMessage() ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}

	_ = c.rawConn.SetReadDeadline(time.Now().Add(c.timeout))
	return c.codec.Decode(c.rawConn)
}

// WriteMessage encodes and sends one message, at most for the configured timeout.
func (c *Conn) WriteMessage(body []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	data, err := c.codec.Encode(body)
	if err != nil {
		return err
	}

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err = c.rawConn.Write(data)
	return err
}

// Close closes the underlying connection.
// Calls after the first return ErrConnectionClosed and do nothing else.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return ErrConnectionClosed
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// closeReason classifies the error that ended a connection loop.
func closeReason(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return "shutdown"
	case errors.Is(err, io.EOF):
		return "peer_closed"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, ErrMessageTooLarge):
		return "message_too_large"
	default:
		return "error"
	}
}
