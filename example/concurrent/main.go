package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/Zereker/timer"
)

func main() {
	clients := flag.Int("clients", 4, "number of concurrent clients")
	msgs := flag.Int("msgs", 5, "messages per client")
	flag.Parse()

	server := timer.NewServer(timer.NewEndpoint(timer.DefaultClientHost, 0))

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	select {
	case <-server.Ready():
	case err := <-serverErr:
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	port := server.Addr().(*net.TCPAddr).Port
	endpoint := timer.NewEndpoint(timer.DefaultClientHost, port)
	slog.Info("server start", "addr", endpoint)

	var (
		wg         sync.WaitGroup
		mismatches atomic.Int64
	)
	for i := 0; i < *clients; i++ {
		var seq atomic.Int64
		tag := fmt.Sprintf("client-%d", i)

		client := timer.NewClient(endpoint, *msgs,
			timer.LoggerOption(timer.NopLogger{}),
			timer.MessageSourceOption(timer.MessageSourceFunc(func() string {
				return fmt.Sprintf("%s-%d", tag, seq.Add(1))
			})),
			timer.OnResponseOption(func(sent string, resp timer.Response) {
				if resp.Message != sent {
					mismatches.Add(1)
				}
				slog.Info("response", "client", tag, "message", resp.Message, "elapsed", resp.Elapsed)
			}),
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Start(ctx); err != nil {
				slog.Error("client error", "client", tag, "error", err)
			}
		}()
	}
	wg.Wait()

	server.Shutdown()
	if err := <-serverErr; err != nil && ctx.Err() == nil {
		slog.Error("server error", "error", err)
	}

	slog.Info("done", "clients", *clients, "mismatches", mismatches.Load())
}
