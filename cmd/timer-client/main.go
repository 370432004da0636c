// Command timer-client sends a number of random UUIDs to timer-server and
// logs the elapsed time the server reports for each one.
package main

import (
	"context"
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
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "YAML config file (optional)")
	numMsgs := flag.Int("num_msgs", 0, "Total number of messages to be sent to the server (e.g.: 20)")
	host := flag.String("host", timer.DefaultClientHost, "Server address to connect to")
	port := flag.Int("port", timer.DefaultPort, "Port number to connect to")
	timeout := flag.Int("timeout", 5, "Timeout for socket operations in seconds")
	framing := flag.String("framing", config.FramingRaw, "Message framing: raw or length")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config failed:", err)
		return 1
	}

	numMsgsSet := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "num_msgs":
			numMsgsSet = true
			cfg.Client.NumMsgs = *numMsgs
		case "host":
			cfg.Client.Host = *host
		case "port":
			cfg.Client.Port = *port
		case "timeout":
			cfg.Client.Timeout = time.Duration(*timeout) * time.Second
		case "framing":
			cfg.Client.Framing = *framing
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	if !numMsgsSet && *configPath == "" {
		fmt.Fprintln(os.Stderr, "the following argument is required: --num_msgs")
		flag.Usage()
		return 2
	}

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

	client := timer.NewClient(
		timer.NewEndpoint(cfg.Client.Host, cfg.Client.Port),
		cfg.Client.NumMsgs,
		timer.LoggerOption(logging.NewAdapter(logger.Logger)),
		timer.TimeoutOption(cfg.Client.Timeout),
		timer.CodecOption(config.NewCodec(cfg.Client.Framing, cfg.Client.ReadBufferSize)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("keyboard interrupt received")
		cancel()
	}()

	// Start shuts the client down before it returns. Failures are reported
	// in the log only; the session always ends cleanly.
	if err := client.Start(ctx); err != nil {
		logger.Warn("session ended early", zap.Int("sent", client.Sent()), zap.Error(err))
	}
	return 0
}
