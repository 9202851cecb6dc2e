package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"genworker/internal/http/handlers"
	"genworker/internal/infra"
	"genworker/internal/middleware"
)

func NewRouter(app *handlers.App, logger infra.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))

	r.Get("/v1/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.RateLimit(30, time.Minute)).Post("/assets/generate", app.Generate)
	})

	return r
}
