package timer

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Zereker/timer/internal/metrics"
)

// roundTrips collects what a client sent and what came back.
type roundTrips struct {
	mu    sync.Mutex
	sent  []string
	resps []Response
}

func (r *roundTrips) record(sent string, resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent)
	r.resps = append(r.resps, resp)
}

func newTestClient(endpoint Endpoint, numMsgs int, opt ...Option) *Client {
	base := []Option{LoggerOption(NopLogger{}), TimeoutOption(3 * time.Second)}
	return NewClient(endpoint, numMsgs, append(base, opt...)...)
}

func TestClient_SendsOneMessage(t *testing.T) {
	_, endpoint := startServerOn(t, 47946)

	var trips roundTrips
	client := newTestClient(endpoint, 1,
		MessageSourceOption(MessageSourceFunc(func() string { return "abc" })),
		OnResponseOption(trips.record),
	)

	require.NoError(t, client.Start(context.Background()))

	require.Len(t, trips.resps, 1)
	assert.Equal(t, "abc", trips.resps[0].Message)
	assert.GreaterOrEqual(t, trips.resps[0].Elapsed, time.Duration(0))
	assert.Equal(t, 1, client.Sent())
	assert.False(t, client.IsInitialized())
	assert.False(t, client.IsRunning())
}

func TestClient_ExactRoundTrips(t *testing.T) {
	_, endpoint := startServer(t)

	for _, n := range []int{0, 1, 5, 20} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			var trips roundTrips
			before := testutil.ToFloat64(metrics.ClientRoundTrips)
			client := newTestClient(endpoint, n, OnResponseOption(trips.record))

			require.NoError(t, client.Start(context.Background()))

			assert.Equal(t, n, client.Sent())
			require.Len(t, trips.resps, n)
			for i := range trips.resps {
				assert.Equal(t, trips.sent[i], trips.resps[i].Message)
			}
			assert.Equal(t, before+float64(n), testutil.ToFloat64(metrics.ClientRoundTrips))
			assert.False(t, client.IsInitialized())
		})
	}
}

func TestClient_ServerShutDown(t *testing.T) {
	server, endpoint := startServer(t)
	server.Shutdown()

	client := newTestClient(endpoint, 1)

	var err error
	require.NotPanics(t, func() {
		err = client.Start(context.Background())
	})
	assert.Error(t, err)
	assert.False(t, client.IsInitialized())
	assert.Zero(t, client.Sent())

	client.Shutdown()
	assert.False(t, client.IsInitialized())
}

func TestClient_Unreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	logger := &recordingLogger{}
	failures := testutil.ToFloat64(metrics.ClientErrors.WithLabelValues("connect"))
	client := NewClient(NewEndpoint("127.0.0.1", port), 3,
		LoggerOption(logger), TimeoutOption(3*time.Second))

	err = client.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to")
	assert.False(t, client.IsInitialized())
	assert.True(t, logger.has("ERROR: failed to connect to server"))
	assert.True(t, logger.has("ERROR: error sending or receiving messages"))
	assert.True(t, logger.has("INFO: client shutdown ended"))
	assert.Equal(t, failures+1, testutil.ToFloat64(metrics.ClientErrors.WithLabelValues("connect")))
}

func TestClient_NoCrossTalk(t *testing.T) {
	_, endpoint := startServer(t)

	const clients, perClient = 10, 5
	var mismatches atomic.Int32
	var wg sync.WaitGroup
	results := make([]*Client, clients)

	for i := 0; i < clients; i++ {
		var seq atomic.Int32
		tag := fmt.Sprintf("client-%d", i)
		results[i] = newTestClient(endpoint, perClient,
			MessageSourceOption(MessageSourceFunc(func() string {
				return fmt.Sprintf("%s-%d", tag, seq.Add(1))
			})),
			OnResponseOption(func(sent string, resp Response) {
				if resp.Message != sent || !strings.HasPrefix(resp.Message, tag+"-") {
					mismatches.Add(1)
				}
			}),
		)

		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			assert.NoError(t, c.Start(context.Background()))
		}(results[i])
	}
	wg.Wait()

	assert.Zero(t, mismatches.Load())
	for _, c := range results {
		assert.Equal(t, perClient, c.Sent())
	}
}

func TestClient_ShutdownIsIdempotent(t *testing.T) {
	client := newTestClient(NewEndpoint("127.0.0.1", DefaultPort), 1)
	assert.True(t, client.IsRunning())

	client.Shutdown()
	client.Shutdown()

	assert.False(t, client.IsInitialized())
	assert.False(t, client.IsRunning())
	assert.ErrorIs(t, client.Start(context.Background()), ErrClientClosed)
}

func TestClient_ShutdownAfterSession(t *testing.T) {
	_, endpoint := startServer(t)
	logger := &recordingLogger{}
	client := NewClient(endpoint, 1, LoggerOption(logger))

	require.NoError(t, client.Start(context.Background()))
	assert.True(t, logger.has("INFO: disconnected from server"))

	// the connection is already closed; a second shutdown only logs it
	client.Shutdown()
	assert.True(t, logger.has("DEBUG: error closing socket"))
	assert.False(t, client.IsInitialized())
}

func TestClient_SendMessagesRequiresStart(t *testing.T) {
	client := newTestClient(NewEndpoint("127.0.0.1", DefaultPort), 1)

	assert.ErrorIs(t, client.SendMessages(context.Background()), ErrNotInitialized)
	assert.True(t, client.IsRunning())
}

func TestClient_ResponseTimeout(t *testing.T) {
	// a server that accepts and never answers
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	client := newTestClient(NewEndpoint("127.0.0.1", port), 3, TimeoutOption(100*time.Millisecond))

	start := time.Now()
	err = client.Start(context.Background())
	require.Error(t, err)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, client.Sent())
	assert.False(t, client.IsInitialized())

	select {
	case conn := <-accepted:
		conn.Close()
	case <-time.After(time.Second):
	}
}

func TestClient_ContextCanceled(t *testing.T) {
	_, endpoint := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var produced atomic.Int32
	client := newTestClient(endpoint, 100,
		MessageSourceOption(MessageSourceFunc(func() string {
			if produced.Add(1) == 2 {
				cancel()
			}
			return "tick"
		})),
	)

	err := client.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, client.Sent())
	assert.False(t, client.IsInitialized())
}

func TestClient_LengthPrefixedFraming(t *testing.T) {
	codec := NewLengthPrefixedCodec(0)
	_, endpoint := startServer(t, CodecOption(codec))

	var trips roundTrips
	client := newTestClient(endpoint, 3, CodecOption(codec), OnResponseOption(trips.record))

	require.NoError(t, client.Start(context.Background()))
	require.Len(t, trips.resps, 3)
	for i := range trips.resps {
		assert.Equal(t, trips.sent[i], trips.resps[i].Message)
	}
}

func TestClient_NoLeakedGoroutines(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	_, endpoint := startServer(t)

	client := newTestClient(endpoint, 3)
	require.NoError(t, client.Start(context.Background()))
}

func TestClient_StartTwice(t *testing.T) {
	// a server that accepts and never answers keeps the first session busy
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	client := newTestClient(NewEndpoint("127.0.0.1", port), 1, TimeoutOption(2*time.Second))

	done := make(chan error, 1)
	go func() {
		done <- client.Start(context.Background())
	}()

	var peer net.Conn
	select {
	case peer = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the first connection")
	}
	defer peer.Close()
	require.True(t, client.IsInitialized())

	assert.ErrorIs(t, client.Start(context.Background()), ErrAlreadyStarted)

	// only one connection was dialled
	select {
	case <-accepted:
		t.Fatal("second Start dialled the server")
	default:
	}

	// the first session ends on its own read timeout
	select {
	case err := <-done:
		var netErr net.Error
		require.True(t, errors.As(err, &netErr))
		assert.True(t, netErr.Timeout())
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for Start to return")
	}
	assert.False(t, client.IsInitialized())
}
