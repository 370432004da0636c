package timer

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/timer/internal/metrics"
)

var (
	// ErrClientClosed is returned by Start after Shutdown.
	ErrClientClosed = errors.New("client closed")
	// ErrNotConnected is returned by a session whose connect attempt failed.
	ErrNotConnected = errors.New("not connected")
)

// Client opens one connection and performs a fixed number of
// request/response round trips on it.
type Client struct {
	endpoint Endpoint
	numMsgs  int
	opts     options
	logger   Logger

	life lifecycle
	sent atomic.Int64

	mu   sync.Mutex
	conn *Conn
}

// NewClient creates a client sending numMsgs messages to endpoint.
func NewClient(endpoint Endpoint, numMsgs int, opt ...Option) *Client {
	opts := newOptions(opt...)
	return &Client{
		endpoint: endpoint,
		numMsgs:  numMsgs,
		opts:     opts,
		logger:   opts.logger,
		life:     lifecycle{running: newRunFlag()},
	}
}

// Start connects and runs the session to completion on a single worker.
// The client is shut down when Start returns.
//
// A failed connect is logged and the session still runs, failing on its
// first round trip; Start then returns the connect error. A second Start
// while a session is active returns ErrAlreadyStarted without dialling.
func (c *Client) Start(ctx context.Context) error {
	if !c.life.running.IsSet() {
		return ErrClientClosed
	}
	if !c.life.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	connErr := c.connect(ctx)
	if connErr != nil {
		c.logger.Error("failed to connect to server", "addr", c.endpoint, "error", connErr)
		metrics.ClientErrors.WithLabelValues("connect").Inc()
	}

	var group errgroup.Group
	group.Go(func() error {
		return c.SendMessages(ctx)
	})
	err := group.Wait()

	if connErr != nil {
		return errors.Wrapf(connErr, "connect to %s", c.endpoint)
	}
	return err
}

func (c *Client) connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.opts.timeout}
	raw, err := dialer.DialContext(ctx, "tcp", c.endpoint.String())
	if err != nil {
		return err
	}

	tcpConn, ok := raw.(*net.TCPConn)
	if !ok {
		_ = raw.Close()
		return errors.Errorf("unexpected connection type %T", raw)
	}
	_ = tcpConn.SetNoDelay(true)

	c.mu.Lock()
	c.conn = newConn(tcpConn, c.opts)
	c.mu.Unlock()

	c.logger.Info("connected to server", "addr", c.endpoint)
	return nil
}

// SendMessages runs the send loop: one message, one reply, until numMsgs
// round trips are done, ctx is cancelled or an I/O error occurs.
// The first error ends the session. Shutdown is called before it returns.
func (c *Client) SendMessages(ctx context.Context) error {
	if !c.IsInitialized() {
		return ErrNotInitialized
	}
	defer c.Shutdown()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	for c.life.running.IsSet() {
		if err := ctx.Err(); err != nil {
			c.life.running.Clear()
			c.logger.Info("session interrupted", "sent", c.Sent(), "reason", err)
			return err
		}

		if c.Sent() >= c.numMsgs {
			c.life.running.Clear()
			c.logger.Info("total number of sent messages has been reached", "sent", c.Sent())
			break
		}

		if err := c.roundTrip(conn); err != nil {
			c.life.running.Clear()
			c.logger.Error("error sending or receiving messages", "sent", c.Sent(), "error", err)
			return err
		}
	}

	return nil
}

func (c *Client) roundTrip(conn *Conn) error {
	if conn == nil {
		return ErrNotConnected
	}

	msg := c.opts.source.Next()
	c.logger.Info("sending message", "message", msg)

	start := time.Now()
	if err := conn.WriteMessage([]byte(msg)); err != nil {
		metrics.ClientErrors.WithLabelValues("send").Inc()
		return errors.Wrap(err, "send")
	}

	reply, err := conn.ReadMessage()
	if err != nil {
		metrics.ClientErrors.WithLabelValues("receive").Inc()
		return errors.Wrap(err, "receive")
	}
	rtt := time.Since(start)

	c.sent.Add(1)
	metrics.ClientRoundTrips.Inc()
	metrics.ClientRoundTripDuration.Observe(rtt.Seconds())
	c.logger.Info("server response", "response", string(reply), "rtt", rtt)

	resp, err := ParseResponse(string(reply))
	if err != nil {
		c.logger.Warn("unexpected response format", "error", err)
		return nil
	}
	if c.opts.onResponse != nil {
		c.opts.onResponse(msg, resp)
	}
	return nil
}

// Shutdown clears the running flag and closes the connection.
// It is safe to call more than once; closing an already closed
// connection is only logged.
func (c *Client) Shutdown() {
	c.logger.Info("client shutdown started")

	c.life.running.Clear()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.logger.Debug("error closing socket", "error", ErrNotConnected)
	} else if err := conn.Close(); err != nil {
		c.logger.Debug("error closing socket", "error", err)
	} else {
		c.logger.Info("disconnected from server", "addr", c.endpoint)
	}

	c.life.initialized.Store(false)
	c.logger.Info("client shutdown ended")
}

// IsInitialized reports whether the client is between Start and Shutdown.
func (c *Client) IsInitialized() bool {
	return c.life.initialized.Load()
}

// IsRunning reports whether the running flag is still set.
func (c *Client) IsRunning() bool {
	return c.life.running.IsSet()
}

// Sent returns the number of completed round trips.
func (c *Client) Sent() int {
	return int(c.sent.Load())
}
