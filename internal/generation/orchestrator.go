package generation

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"genworker/internal/domain"
	"genworker/internal/infra"
	"genworker/internal/provider"
)

// Options tunes the polling state machine.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Logger       *infra.Logger
}

// Orchestrator drives a single job from submission to a terminal state
// against one provider. It owns the GenerationRecord for the lifetime of the
// job; nothing is shared across jobs.
type Orchestrator struct {
	pollInterval time.Duration
	timeout      time.Duration
	logger       *infra.Logger
}

// NewOrchestrator applies the service defaults: poll every 3s, give up after
// 240s of wall-clock time since submission.
func NewOrchestrator(opts Options) *Orchestrator {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 240 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Orchestrator{
		pollInterval: pollInterval,
		timeout:      timeout,
		logger:       logger,
	}
}

// Run submits the request and polls the provider until a terminal state.
//
// Terminal vendor failures and the poll timeout are not errors: they come back
// as FAILED/TIMEOUT records and flow into a FAIL callback downstream. An error
// return means the job never reached a vendor-terminal observation (provider
// unavailable, submit rejected the input, or a poll call failed); callers
// decide whether that dead-letters the record or fails the job.
func (o *Orchestrator) Run(ctx context.Context, req domain.JobRequest, p provider.Provider) (domain.GenerationRecord, error) {
	if !p.Available() {
		return domain.GenerationRecord{}, fmt.Errorf("%s: %w", p.Name(), domain.ErrProviderUnavailable)
	}

	params := paramsForKind(req.Kind)
	handle, err := p.Submit(ctx, req.Prompt, req.ReferenceImages, params)
	if err != nil {
		return domain.GenerationRecord{}, fmt.Errorf("submit to %s: %w", p.Name(), err)
	}

	rec := domain.GenerationRecord{
		ID:        handle.ID,
		State:     domain.StateQueued,
		CreatedAt: time.Now(),
	}
	o.logger.Info().
		Str("job_id", req.ID).
		Str("provider", p.Name()).
		Str("task_id", handle.ID).
		Msg("generation: submitted")

	var last provider.Status
	for {
		if time.Since(rec.CreatedAt) >= o.timeout {
			rec.State = domain.StateTimeout
			o.logger.Warn().
				Str("job_id", req.ID).
				Str("task_id", handle.ID).
				Dur("timeout", o.timeout).
				Msg("generation: timed out")
			return rec, nil
		}

		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-time.After(o.pollInterval):
		}

		res, err := p.Poll(ctx, handle)
		if err != nil {
			return rec, fmt.Errorf("poll %s task %s: %w", p.Name(), handle.ID, err)
		}

		// log each transition once; repeated identical statuses stay quiet
		if res.Status != last {
			last = res.Status
			o.logger.Info().
				Str("job_id", req.ID).
				Str("task_id", handle.ID).
				Str("status", string(res.Status)).
				Msg("generation: status changed")
		}

		switch res.Status {
		case provider.StatusSucceeded:
			rec.State = domain.StateCompleted
			// a vendor success without a retrievable asset stays COMPLETED
			// with no URL; downstream derives FAIL from the missing URL
			rec.AssetURL = firstValidURL(res.Output)
			return rec, nil
		case provider.StatusFailed:
			rec.State = domain.StateFailed
			rec.Error = res.ErrorDetail
			return rec, nil
		case provider.StatusRunning:
			rec.State = domain.StateDreaming
		case provider.StatusQueued:
			rec.State = domain.StateQueued
		}
	}
}

func paramsForKind(kind domain.Kind) provider.Params {
	switch kind {
	case domain.KindVideoV2:
		return provider.Params{Model: "gen4_turbo", Ratio: "720:1280", DurationSeconds: 5}
	case domain.KindVideoV1:
		return provider.Params{Model: "ray-2"}
	default:
		return provider.Params{}
	}
}

// firstValidURL returns the first syntactically valid http(s) URL from the
// provider's output list, or "" when none qualifies.
func firstValidURL(output []string) string {
	for _, candidate := range output {
		u, err := url.Parse(candidate)
		if err != nil {
			continue
		}
		if (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return candidate
		}
	}
	return ""
}
