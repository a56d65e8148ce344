package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatdigest/internal/backend"
	"chatdigest/internal/config"
	"chatdigest/internal/events"
	"chatdigest/internal/server"
)

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Embedding store unavailable, falling back to in-memory cache")
		memCfg := *cfg
		memCfg.EmbeddingCacheBackend = backend.BackendMemory
		if b, err = backend.Open(ctx, &memCfg, logger); err != nil {
			logger.Fatal().Err(err).Msg("Failed to build embedding cache")
		}
	}
	defer func() { _ = b.Close() }()

	publisher, err := events.Connect(cfg.NatsURL, cfg.NatsToken, cfg.NatsSubject, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("NATS unavailable, segmentation events disabled")
	}
	defer publisher.Close()

	srv := server.New(cfg, b, publisher, logger)
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
