package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genworker/internal/domain"
	"genworker/internal/infra"
	"genworker/internal/provider"
)

type stubProvider struct{}

func (stubProvider) Name() string    { return "stub" }
func (stubProvider) Available() bool { return true }
func (stubProvider) Submit(ctx context.Context, prompt string, refs []string, params provider.Params) (provider.Handle, error) {
	return provider.Handle{ID: "task"}, nil
}
func (stubProvider) Poll(ctx context.Context, h provider.Handle) (provider.PollResult, error) {
	return provider.PollResult{Status: provider.StatusSucceeded}, nil
}

type stubRunner struct {
	rec domain.GenerationRecord
	err error
}

func (s stubRunner) Run(ctx context.Context, req domain.JobRequest, p provider.Provider) (domain.GenerationRecord, error) {
	return s.rec, s.err
}

type recordingDispatcher struct {
	payloads []domain.CallbackPayload
}

func (d *recordingDispatcher) Deliver(ctx context.Context, payload domain.CallbackPayload) domain.CallbackOutcome {
	d.payloads = append(d.payloads, payload)
	return domain.CallbackOutcome{Code: domain.OutcomeOK, Status: 200, Timestamp: time.Now()}
}

func testApp(runner Runner, disp Dispatcher) *App {
	logger := infra.Logger(zerolog.New(io.Discard))
	return &App{
		Logger:     &logger,
		Providers:  provider.Registry{domain.KindVideoV1: stubProvider{}},
		Runner:     runner,
		Dispatcher: disp,
	}
}

func TestGenerateSuccess(t *testing.T) {
	t.Parallel()
	disp := &recordingDispatcher{}
	app := testApp(stubRunner{rec: domain.GenerationRecord{State: domain.StateCompleted, AssetURL: "https://cdn/x.mp4"}}, disp)

	req := httptest.NewRequest(http.MethodPost, "/api/assets/generate",
		strings.NewReader(`{"jobId":"j1","kind":"VIDEO_V1","prompt":"sunset"}`))
	rr := httptest.NewRecorder()
	app.Generate(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(disp.payloads) != 1 || disp.payloads[0].Result != domain.ResultSuccess {
		t.Fatalf("payloads = %+v", disp.payloads)
	}
}

func TestGenerateMintsJobID(t *testing.T) {
	t.Parallel()
	disp := &recordingDispatcher{}
	app := testApp(stubRunner{rec: domain.GenerationRecord{State: domain.StateCompleted, AssetURL: "https://cdn/x.mp4"}}, disp)

	req := httptest.NewRequest(http.MethodPost, "/api/assets/generate",
		strings.NewReader(`{"kind":"VIDEO_V1","prompt":"sunset"}`))
	rr := httptest.NewRecorder()
	app.Generate(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(disp.payloads) != 1 || disp.payloads[0].AssetID == "" {
		t.Fatalf("payloads = %+v", disp.payloads)
	}
}

func TestGenerateValidation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
	}{
		{name: "missing_prompt", body: `{"jobId":"j","kind":"VIDEO_V1"}`},
		{name: "unknown_kind", body: `{"jobId":"j","kind":"SHORTS_GEN_9","prompt":"p"}`},
		{name: "broken_json", body: `{"jobId":`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			disp := &recordingDispatcher{}
			app := testApp(stubRunner{}, disp)
			req := httptest.NewRequest(http.MethodPost, "/api/assets/generate", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			app.Generate(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			if len(disp.payloads) != 0 {
				t.Fatalf("dispatcher called on invalid request")
			}
		})
	}
}

func TestGenerateFailureStillDeliversCallback(t *testing.T) {
	t.Parallel()
	disp := &recordingDispatcher{}
	app := testApp(stubRunner{err: context.DeadlineExceeded}, disp)

	req := httptest.NewRequest(http.MethodPost, "/api/assets/generate",
		strings.NewReader(`{"jobId":"j9","kind":"VIDEO_V1","prompt":"sunset"}`))
	rr := httptest.NewRecorder()
	app.Generate(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(disp.payloads) != 1 || disp.payloads[0].Result != domain.ResultFail {
		t.Fatalf("payloads = %+v", disp.payloads)
	}
}
