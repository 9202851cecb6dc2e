package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"genworker/internal/domain"
)

type generateRequest struct {
	JobID           string         `json:"jobId"`
	Kind            string         `json:"kind"`
	Prompt          string         `json:"prompt"`
	ReferenceImages []string       `json:"referenceImages"`
	Origin          map[string]any `json:"origin"`
}

// Generate runs one job synchronously: enhance, submit, poll to a terminal
// state, deliver the callback, and answer with the delivery outcome. The
// asynchronous consumer is the primary entry point; this endpoint exists for
// direct invocation and manual verification.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "prompt is required"})
		return
	}
	kind, ok := domain.ParseKind(strings.ToUpper(strings.TrimSpace(body.Kind)))
	if !ok {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "unknown kind " + body.Kind})
		return
	}

	req := domain.JobRequest{
		ID:              strings.TrimSpace(body.JobID),
		Kind:            kind,
		Prompt:          body.Prompt,
		ReferenceImages: body.ReferenceImages,
		Origin:          body.Origin,
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	prov, ok := a.Providers.For(req.Kind)
	if !ok {
		a.json(w, http.StatusServiceUnavailable, map[string]string{"error": "no provider wired for kind " + string(req.Kind)})
		return
	}

	run := req
	if a.Enhancer != nil {
		if enhanced, err := a.Enhancer.Enhance(r.Context(), req.Prompt); err == nil {
			run.Prompt = enhanced
		} else {
			a.Logger.Warn().Err(err).Str("job_id", req.ID).Msg("api: prompt enhancement failed, using raw prompt")
		}
	}

	rec, err := a.Runner.Run(r.Context(), run, prov)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.json(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		// the downstream still learns about the failed job before we answer
		a.Logger.Error().Err(err).Str("job_id", req.ID).Msg("api: generation failed")
		rec = domain.GenerationRecord{State: domain.StateFailed, Error: err.Error()}
		outcome := a.Dispatcher.Deliver(r.Context(), domain.NewCallbackPayload(req, rec))
		a.json(w, http.StatusInternalServerError, map[string]any{
			"error":    err.Error(),
			"callback": outcome,
		})
		return
	}

	outcome := a.Dispatcher.Deliver(r.Context(), domain.NewCallbackPayload(req, rec))
	a.json(w, http.StatusOK, outcome)
}
