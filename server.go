package timer

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/timer/internal/metrics"
)

// Lifecycle errors.
var (
	// ErrNotInitialized is returned when an operation needs a started component.
	ErrNotInitialized = errors.New("not initialized")
	// ErrServerClosed is returned by Start after Shutdown.
	ErrServerClosed = errors.New("server closed")
	// ErrAlreadyStarted is returned by a second concurrent Start.
	ErrAlreadyStarted = errors.New("already started")
)

// Server listens on an endpoint and answers every message with the time
// elapsed since the previous message on the same connection.
type Server struct {
	endpoint Endpoint
	opts     options
	logger   Logger

	life   lifecycle
	roster *roster
	active atomic.Int64

	mu        sync.Mutex
	listener  *net.TCPListener
	ready     chan struct{}
	readyOnce sync.Once
}

// NewServer creates a server for endpoint. It does not bind until Start.
func NewServer(endpoint Endpoint, opt ...Option) *Server {
	opts := newOptions(opt...)
	return &Server{
		endpoint: endpoint,
		opts:     opts,
		logger:   opts.logger,
		life:     lifecycle{running: newRunFlag()},
		roster:   newRoster(opts.maxConnections),
		ready:    make(chan struct{}),
	}
}

// Start binds the endpoint and accepts connections until Shutdown.
// Each connection is served by its own handler goroutine.
//
// Accept is bounded by the accept timeout, so a cleared running flag is
// noticed within that time. If ctx is cancelled Start shuts the server
// down itself and returns ctx.Err().
func (s *Server) Start(ctx context.Context) error {
	if !s.life.running.IsSet() {
		return ErrServerClosed
	}
	if !s.life.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	listener, err := s.listen()
	if err != nil {
		s.life.initialized.Store(false)
		if errors.Is(err, ErrServerClosed) {
			return err
		}
		s.logger.Error("failed to start server", "addr", s.endpoint, "error", err)
		return err
	}

	s.logger.Info("server started", "addr", listener.Addr())
	s.logger.Info("server is running and waiting for connections")

	// Unblock a pending accept as soon as ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = listener.SetDeadline(time.Now())
	})
	defer stop()

	for s.life.running.IsSet() {
		if ctx.Err() != nil {
			s.logger.Info("server interrupted", "reason", ctx.Err())
			s.Shutdown()
			return ctx.Err()
		}

		_ = listener.SetDeadline(time.Now().Add(s.opts.acceptTimeout))
		if ctx.Err() != nil {
			// cancelled after the check above; the new deadline may have hidden it
			continue
		}

		conn, err := listener.AcceptTCP()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				s.logger.Debug("no connection received, retrying")
			case errors.Is(err, net.ErrClosed):
				if s.life.running.IsSet() {
					s.logger.Error("listener closed unexpectedly", "error", err)
					return errors.Wrap(err, "accept")
				}
			default:
				s.logger.Debug("problem with socket", "error", err)
			}
			continue
		}

		s.dispatch(conn)
	}

	s.logger.Info("server stopped accepting", "addr", listener.Addr())
	return nil
}

func (s *Server) listen() (*net.TCPListener, error) {
	addr, err := net.ResolveTCPAddr("tcp", s.endpoint.String())
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", s.endpoint)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", s.endpoint)
	}

	// Shutdown may have run while binding; it takes the listener under the
	// same lock, so either it sees this one or this one sees the cleared flag.
	s.mu.Lock()
	if !s.life.running.IsSet() {
		s.mu.Unlock()
		_ = listener.Close()
		return nil, ErrServerClosed
	}
	s.listener = listener
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	return listener, nil
}

// dispatch hands an accepted connection to a new handler, or closes it if
// the roster refuses.
func (s *Server) dispatch(raw *net.TCPConn) {
	_ = raw.SetNoDelay(true)
	conn := newConn(raw, s.opts)
	running := s.life.running

	err := s.roster.spawn(func() error {
		_ = s.handle(conn, running)
		return nil
	})
	if err != nil {
		s.logger.Warn("rejecting connection", "addr", conn.Addr(), "reason", err)
		metrics.ServerConnectionsRejected.Inc()
		_ = conn.Close()
		return
	}

	metrics.ServerConnectionsAccepted.Inc()
}

// handle runs the request/response loop of one connection until the peer
// disconnects, an I/O error occurs or the running flag is cleared.
// The connection is closed on every path.
func (s *Server) handle(conn *Conn, running *runFlag) (err error) {
	if !s.IsInitialized() {
		_ = conn.Close()
		return ErrNotInitialized
	}

	addr := conn.Addr()
	s.active.Add(1)
	metrics.ServerConnections.Inc()
	s.logger.Info("client connected", "addr", addr)

	defer func() {
		_ = conn.Close()
		s.active.Add(-1)
		metrics.ServerConnections.Dec()
		metrics.ServerConnectionClose.WithLabelValues(closeReason(err)).Inc()
		s.logger.Info("client disconnected", "addr", addr)
	}()

	last := time.Now()
	for running.IsSet() {
		var msg []byte
		msg, err = conn.ReadMessage()
		if errors.Is(err, io.EOF) {
			return err
		}
		if err != nil {
			s.logger.Error("error with client", "addr", addr, "error", err)
			return err
		}

		elapsed := time.Since(last)
		s.logger.Info("message received", "addr", addr, "message", string(msg))
		metrics.ServerMessages.Inc()
		metrics.ServerMessageInterval.Observe(elapsed.Seconds())

		if err = conn.WriteMessage([]byte(FormatResponse(string(msg), elapsed))); err != nil {
			s.logger.Error("error with client", "addr", addr, "error", err)
			return err
		}
		last = time.Now()
	}

	return nil
}

// Shutdown clears the running flag, waits for every handler to return and
// closes the listener. It is safe to call more than once and before Start.
func (s *Server) Shutdown() {
	s.logger.Info("server shutdown started")

	s.life.running.Clear()
	s.roster.close()
	_ = s.roster.wait()

	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener == nil {
		s.logger.Debug("closing server socket", "error", "no open listener")
	} else if err := listener.Close(); err != nil {
		s.logger.Debug("closing server socket", "error", err)
	}

	s.life.initialized.Store(false)
	s.logger.Info("server shutdown ended")
}

// IsInitialized reports whether the server is between Start and Shutdown.
func (s *Server) IsInitialized() bool {
	return s.life.initialized.Load()
}

// IsRunning reports whether the running flag is still set.
func (s *Server) IsRunning() bool {
	return s.life.running.IsSet()
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listener's network address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveConnections returns the number of connections being handled.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}
