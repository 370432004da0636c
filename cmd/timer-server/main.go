// Command timer-server waits for client connections and answers every
// message with the time elapsed since the previous one on that connection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Zereker/timer"
	"github.com/Zereker/timer/internal/config"
	"github.com/Zereker/timer/internal/logging"
	"github.com/Zereker/timer/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "YAML config file (optional)")
	host := flag.String("host", timer.DefaultServerHost, "Address to bind")
	port := flag.Int("port", timer.DefaultPort, "Port number to listen for clients")
	timeout := flag.Int("timeout", 5, "Timeout for socket operations in seconds")
	maxConns := flag.Int("max-conns", 0, "Maximum concurrent connections (0 = unbounded)")
	framing := flag.String("framing", config.FramingRaw, "Message framing: raw or length")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics and /health on this address")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config failed:", err)
		return 1
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.Port = *port
		case "timeout":
			cfg.Server.Timeout = time.Duration(*timeout) * time.Second
		case "max-conns":
			cfg.Server.MaxConnections = *maxConns
		case "framing":
			cfg.Server.Framing = *framing
		case "metrics-addr":
			cfg.Metrics.Enabled = true
			cfg.Metrics.Addr = *metricsAddr
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		return 1
	}

	logger := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer logger.Close()

	server := timer.NewServer(
		timer.NewEndpoint(cfg.Server.Host, cfg.Server.Port),
		timer.LoggerOption(logging.NewAdapter(logger.Logger)),
		timer.TimeoutOption(cfg.Server.Timeout),
		timer.AcceptTimeoutOption(cfg.Server.AcceptTimeout),
		timer.MaxConnectionsOption(cfg.Server.MaxConnections),
		timer.CodecOption(config.NewCodec(cfg.Server.Framing, cfg.Server.ReadBufferSize)),
	)

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Addr, server.ActiveConnections, logger.Logger)
		if err := ms.Start(); err != nil {
			logger.Error("start metrics server failed", zap.Error(err))
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Stop(ctx)
		}()
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	err = server.Start(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		logger.Error("server error", zap.Error(err))
		return 1
	}
}
