package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"genworker/internal/domain"
	"genworker/internal/infra"
	"genworker/internal/provider"
)

// Runner drives one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, req domain.JobRequest, p provider.Provider) (domain.GenerationRecord, error)
}

// Dispatcher reports a terminal result to the downstream callback consumer.
type Dispatcher interface {
	Deliver(ctx context.Context, payload domain.CallbackPayload) domain.CallbackOutcome
}

// Enhancer rewrites the prompt before submission; best-effort.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

// App carries the handler dependencies.
type App struct {
	Logger     *infra.Logger
	Providers  provider.Registry
	Runner     Runner
	Dispatcher Dispatcher
	Enhancer   Enhancer
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
