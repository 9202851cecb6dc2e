package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"genworker/internal/callback"
	"genworker/internal/enhance"
	"genworker/internal/generation"
	"genworker/internal/http/handlers"
	httpapi "genworker/internal/http/httpapi"
	"genworker/internal/infra"
	"genworker/internal/provider"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	providers := provider.FromConfig(cfg, &logger)
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
			logger.Warn().Err(err).Str("reason", reason).Msg("api: prompt enhancement fell back to static")
		},
	})

	app := &handlers.App{
		Logger:     &logger,
		Providers:  providers,
		Runner:     runner,
		Dispatcher: dispatcher,
		Enhancer:   enhancer,
	}

	router := httpapi.NewRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
