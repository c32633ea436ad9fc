package main

import (
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/briangreenhill/thumbcache/internal/app"
	"github.com/briangreenhill/thumbcache/internal/config"
	"github.com/briangreenhill/thumbcache/internal/jobs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := app.StdoutLogger(cfg.LogLevel)

	svc := app.NewService(cfg, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error().Err(err).Msg("close thumbnail cache")
		}
	}()
	if !svc.Available() {
		logger.Warn().Msg("thumbnail cache unavailable, warm jobs will be dropped")
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency:    8,
		StrictPriority: false,
		Queues: map[string]int{
			jobs.QueueThumbnails: 10, // higher priority
			"default":            5,  // default priority
		},
		Logger: asynqLogger{logger.With().Str("component", "asynq").Logger()},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TaskWarmThumbnail, jobs.HandleWarmThumbnail(svc, logger.With().Str("task", jobs.TaskWarmThumbnail).Logger()))

	logger.Info().Str("redis", cfg.RedisAddr).Msg("worker running")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}
