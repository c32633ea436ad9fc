// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/briangreenhill/thumbcache/internal/app"
	"github.com/briangreenhill/thumbcache/internal/config"
	"github.com/briangreenhill/thumbcache/internal/http/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// Logger
	logger := app.StdoutLogger(cfg.LogLevel)
	logger.Info().Str("port", cfg.Port).Str("backend", cfg.Cache.Backend).Msg("starting api")

	svc := app.NewService(cfg, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error().Err(err).Msg("close thumbnail cache")
		}
	}()
	if !svc.Available() {
		logger.Warn().Msg("thumbnail cache unavailable, lookups will return 404")
	}

	// Background jobs
	var queue routes.Enqueuer
	if cfg.RedisAddr != "" {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("close asynq client")
			}
		}()
		queue = client
	}

	s := routes.New(routes.ServerOptions{
		Thumbs:  svc,
		Queue:   queue,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Fetch.Timeout * 2,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("listen")
	}
	logger.Info().Msg("api stopped")
}
