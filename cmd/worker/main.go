package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"genworker/internal/callback"
	"genworker/internal/consumer"
	"genworker/internal/enhance"
	"genworker/internal/generation"
	"genworker/internal/infra"
	"genworker/internal/provider"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer func() {
		_ = rdb.Close()
	}()

	providers := provider.FromConfig(cfg, &logger)
	for kind, p := range providers {
		if !p.Available() {
			logger.Warn().Str("kind", string(kind)).Str("provider", p.Name()).Msg("worker: provider not configured, its jobs will fail")
		}
	}

	runner := generation.NewOrchestrator(generation.Options{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.GenerationTimeout,
		Logger:       &logger,
	})
	dispatcher := callback.NewDispatcher(callback.Options{
		TargetURL: cfg.CallbackURL,
		Logger:    &logger,
	})
	enhancer := enhance.NewOpenAI(enhance.OpenAIOptions{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		OnFallback: func(reason string, err error) {
			logger.Warn().Err(err).Str("reason", reason).Msg("worker: prompt enhancement fell back to static")
		},
	})

	c := consumer.New(consumer.Options{
		Client:     rdb,
		Stream:     cfg.StreamKey,
		DeadStream: cfg.DeadStreamKey,
		Group:      cfg.ConsumerGroup,
		ConsumerID: cfg.ConsumerID,
		BatchSize:  int64(cfg.ClaimBatchSize),
		Block:      cfg.ClaimBlock,
		Providers:  providers,
		Runner:     runner,
		Dispatcher: dispatcher,
		Enhancer:   enhancer,
		Logger:     &logger,
	})

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
