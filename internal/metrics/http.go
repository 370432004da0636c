package metrics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status        string  `json:"status"`
	Connections   int     `json:"connections"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Server exposes /metrics and /health over HTTP.
type Server struct {
	addr        string
	connections func() int
	logger      *zap.Logger
	startTime   time.Time

	srv      *http.Server
	listener net.Listener
}

// NewServer returns a metrics server for addr. connections reports the
// number of active timer connections for the health body.
func NewServer(addr string, connections func() int, logger *zap.Logger) *Server {
	s := &Server{
		addr:        addr,
		connections: connections,
		logger:      logger,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.healthHandler)

	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen metrics on %s", s.addr)
	}
	s.listener = ln

	s.logger.Info("starting metrics server", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:        "healthy",
		Connections:   s.connections(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}
