package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthony-cros/hookup"
	"github.com/anthony-cros/hookup/buffer"
	"github.com/anthony-cros/hookup/envelope"
	"github.com/anthony-cros/hookup/internal/ratelimit"
	"github.com/anthony-cros/hookup/throttle"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default: hookupd.yaml)")
		url        = flag.String("url", "", "WebSocket URL to connect to (overrides config)")
	)
	flag.Parse()

	initLogger("info")

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.URL = *url
	}
	initLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	id, err := loadOrCreateIdentity(cfg.DataDir)
	if err != nil {
		slog.Error("failed to load connection identity", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, id); err != nil {
		slog.Error("hookupd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, id *identity) error {
	logger := slog.Default().With("connection_id", id.ConnectionID)

	settings := hookup.NewSettings(cfg.URL).
		ConnectTimeout(cfg.ConnectTimeout).
		PingInterval(cfg.PingInterval).
		Buffer(buffer.NewMemoryBuffer()).
		Throttle(throttle.Exponential(cfg.ReconnectDelay, 30*time.Second, -1)).
		RateLimits(ratelimit.DefaultLimits()).
		Logger(logger).
		Build()

	client := hookup.New(settings)
	defer client.Close(context.Background())

	go logEvents(logger, client.Events())

	if _, err := client.Connect(ctx); err != nil {
		logger.Warn("initial connect did not complete", "error", err)
	}

	go relayStdin(ctx, logger, client)

	<-ctx.Done()
	logger.Info("shutting down")

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	_, err := client.Disconnect(closeCtx)
	return err
}

func logEvents(logger *slog.Logger, events <-chan envelope.InMessage) {
	for msg := range events {
		switch v := msg.(type) {
		case envelope.Connected:
			logger.Info("connected")
		case envelope.Reconnecting:
			logger.Info("reconnecting")
		case envelope.Disconnected:
			logger.Info("disconnected", "reason", v.Reason)
		case envelope.ErrorEvent:
			logger.Error("connection error", "error", v.Cause)
		case envelope.TextMessage:
			logger.Info("received text", "text", v.Text)
		case envelope.JSONMessage:
			logger.Info("received json", "data", string(v.Data))
		case envelope.BinaryMessage:
			logger.Info("received binary", "bytes", len(v.Data))
		case envelope.AckFailed:
			logger.Warn("ack timed out")
		}
	}
}

func relayStdin(ctx context.Context, logger *slog.Logger, client *hookup.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := client.Send(ctx, envelope.TextMessage{Text: line}); err != nil {
			logger.Warn("send failed", "error", err)
		}
	}
}

func initLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
