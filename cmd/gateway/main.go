package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ZhouDavid/sentiment-stream/internal/config"
	"github.com/ZhouDavid/sentiment-stream/internal/gateway"
	"github.com/ZhouDavid/sentiment-stream/internal/logger"
	"github.com/ZhouDavid/sentiment-stream/internal/metrics"
	"github.com/ZhouDavid/sentiment-stream/pkg/sentiment"
	"github.com/ZhouDavid/sentiment-stream/pkg/stream"
	"github.com/ZhouDavid/sentiment-stream/pkg/stream/allstocks"
	"github.com/ZhouDavid/sentiment-stream/pkg/stream/stocks"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer zl.Sync()

	reg := metrics.NewRegistry()
	streamMetrics := metrics.NewStreamMetrics(reg)
	restMetrics := metrics.NewRESTMetrics(reg)

	// Initialize the REST client
	client, err := sentiment.NewClient(cfg.StreamCredentials(),
		sentiment.WithBaseURL(cfg.REST.BaseURL),
		sentiment.WithTimeout(cfg.REST.Timeout),
		sentiment.WithLogger(zl.Named("rest")),
		sentiment.WithObserver(restMetrics))
	if err != nil {
		zl.Fatal("Error creating REST client", zap.Error(err))
	}

	// Initialize the gateway service; the stream feeds its snapshot cache
	service := gateway.NewService(client, nil)

	streamer, err := newStreamer(cfg, service.HandleUpdate, zl.Named("stream"), streamMetrics)
	if err != nil {
		zl.Fatal("Error creating streamer", zap.Error(err))
	}
	service.SetStreamer(streamer)

	gin.SetMode(gin.ReleaseMode)
	handler := gateway.NewHandler(service, zl.Named("gateway"))
	srv := &http.Server{
		Addr:    cfg.Gateway.Addr,
		Handler: gateway.NewRouter(handler, reg, zl.Named("http")),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streamDone := make(chan error, 1)
	go func() { streamDone <- streamer.Stream(ctx) }()

	go func() {
		zl.Info("Gateway listening", zap.String("addr", cfg.Gateway.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("Failed to start server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown failed", zap.Error(err))
	}
	if err := <-streamDone; err != nil {
		zl.Error("Streaming error", zap.Error(err))
	}
}

func newStreamer(cfg *config.Config, handler stream.UpdateHandler, zl *zap.Logger, observer stream.Observer) (stream.SentimentStreamer, error) {
	clock := clockwork.NewRealClock()
	dialer := stream.NewWSDialer(clock)
	dialer.PingInterval = cfg.Stream.PingInterval
	dialer.PongTimeout = cfg.Stream.PongTimeout

	opts := []stream.Option{
		stream.WithDialer(dialer),
		stream.WithClock(clock),
		stream.WithLogger(zl),
		stream.WithObserver(observer),
		stream.WithBaseURL(cfg.Stream.BaseURL),
		stream.WithBackoff(cfg.Stream.BackoffMin, cfg.Stream.BackoffMax),
	}

	if cfg.Stream.Mode == config.ModeStocks {
		s, err := stocks.NewStreamer(cfg.StreamCredentials(), cfg.Stream.Symbols, handler, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := allstocks.NewStreamer(cfg.StreamCredentials(), handler, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
