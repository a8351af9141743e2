package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ZhouDavid/sentiment-stream/internal/config"
	"github.com/ZhouDavid/sentiment-stream/internal/logger"
	"github.com/ZhouDavid/sentiment-stream/pkg/stream"
	"github.com/ZhouDavid/sentiment-stream/pkg/stream/allstocks"
	"github.com/ZhouDavid/sentiment-stream/pkg/stream/stocks"
)

// createUpdateHandler returns a handler function for printing updates
func createUpdateHandler(mode string) stream.UpdateHandler {
	return func(u stream.Update) {
		symbol, _ := u.String("symbol")
		data, err := u.MarshalJSON()
		if err != nil {
			data = []byte(fmt.Sprint(u.Map()))
		}
		fmt.Printf("[%s] %s %s: %s\n",
			time.Now().Format("15:04:05"),
			mode,
			symbol,
			data)
	}
}

// main streams sentiment updates until interrupted. The subscription is
// taken from the config file and the API_SENTIMENTINVESTOR_* environment.
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer zl.Sync()

	clock := clockwork.NewRealClock()
	dialer := stream.NewWSDialer(clock)
	dialer.PingInterval = cfg.Stream.PingInterval
	dialer.PongTimeout = cfg.Stream.PongTimeout

	opts := []stream.Option{
		stream.WithDialer(dialer),
		stream.WithClock(clock),
		stream.WithLogger(zl),
		stream.WithBaseURL(cfg.Stream.BaseURL),
		stream.WithBackoff(cfg.Stream.BackoffMin, cfg.Stream.BackoffMax),
		stream.WithErrorHandler(func(err error) {
			fmt.Fprintf(os.Stderr, "stream error: %v\n", err)
		}),
	}

	var streamer stream.SentimentStreamer
	switch cfg.Stream.Mode {
	case config.ModeStocks:
		s, err := stocks.NewStreamer(cfg.StreamCredentials(), cfg.Stream.Symbols, createUpdateHandler(cfg.Stream.Mode), opts...)
		if err != nil {
			zl.Fatal("Error creating stock streamer", zap.Error(err))
		}
		streamer = s
	default:
		s, err := allstocks.NewStreamer(cfg.StreamCredentials(), createUpdateHandler(cfg.Stream.Mode), opts...)
		if err != nil {
			zl.Fatal("Error creating all-stocks streamer", zap.Error(err))
		}
		streamer = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl.Info("Streamer is running. Waiting for sentiment data...",
		zap.String("mode", cfg.Stream.Mode),
		zap.Strings("symbols", cfg.Stream.Symbols))

	if err := streamer.Stream(ctx); err != nil {
		zl.Error("Streaming error", zap.Error(err))
		os.Exit(1)
	}
	zl.Info("Received interrupt signal, connection closed")
}
