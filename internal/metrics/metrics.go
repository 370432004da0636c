// Package metrics holds the Prometheus collectors of the timer server and client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Server metrics
var (
	ServerConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timer_server_connections",
		Help: "Number of connections currently being handled",
	})

	ServerConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timer_server_connections_accepted_total",
		Help: "Total connections accepted and handed to a handler",
	})

	ServerConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timer_server_connections_rejected_total",
		Help: "Total connections closed right after accept (limit reached or shutting down)",
	})

	ServerConnectionClose = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timer_server_connection_close_total",
		Help: "Connection close count by reason",
	}, []string{"reason"})

	ServerMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timer_server_messages_total",
		Help: "Total messages answered",
	})

	ServerMessageInterval = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "timer_server_message_interval_seconds",
		Help:    "Time between two consecutive messages on one connection",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
)

// Client metrics
var (
	ClientRoundTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timer_client_round_trips_total",
		Help: "Total completed request/response round trips",
	})

	ClientRoundTripDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "timer_client_round_trip_seconds",
		Help:    "Round trip latency seen by the client",
		Buckets: prometheus.DefBuckets,
	})

	ClientErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timer_client_errors_total",
		Help: "Client failures by operation",
	}, []string{"op"}) // connect, send, receive
)
