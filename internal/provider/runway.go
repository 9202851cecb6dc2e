package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genworker/internal/domain"
	"genworker/internal/infra"
)

const runwayAPIVersion = "2024-11-06"

// RunwayOptions configures the Runway image-to-video client.
type RunwayOptions struct {
	APIKey          string
	BaseURL         string
	Model           string
	Ratio           string
	DurationSeconds int
	HTTPClient      *http.Client
	Logger          *infra.Logger
}

// Runway drives Runway's image-to-video API. Submissions require at least one
// reference image; the first one becomes the prompt image.
type Runway struct {
	apiKey     string
	baseURL    string
	model      string
	ratio      string
	duration   int
	httpClient *http.Client
	logger     *infra.Logger
}

type runwayCreateRequest struct {
	Model       string `json:"model"`
	PromptImage string `json:"promptImage"`
	PromptText  string `json:"promptText"`
	Ratio       string `json:"ratio"`
	Duration    int    `json:"duration"`
}

type runwayTask struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Output  []string `json:"output"`
	Failure string   `json:"failure"`
}

type runwayErrorResponse struct {
	Error string `json:"error"`
}

// NewRunway constructs the client with sane defaults. A missing API key does
// not fail construction; the provider reports unavailable instead.
func NewRunway(opts RunwayOptions) *Runway {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		// dev keys are the common case, so the dev endpoint is the default
		baseURL = "https://api.dev.runwayml.com"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gen4_turbo"
	}
	ratio := strings.TrimSpace(opts.Ratio)
	if ratio == "" {
		ratio = "720:1280"
	}
	duration := opts.DurationSeconds
	if duration <= 0 {
		duration = 5
	}
	return &Runway{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		ratio:      ratio,
		duration:   duration,
		httpClient: httpClient,
		logger:     ensureLogger(opts.Logger),
	}
}

func (r *Runway) Name() string { return "runway" }

func (r *Runway) Available() bool { return r.apiKey != "" }

func (r *Runway) Submit(ctx context.Context, prompt string, referenceImages []string, params Params) (Handle, error) {
	if !r.Available() {
		return Handle{}, fmt.Errorf("runway: %w: RUNWAY_API_KEY is not set", domain.ErrProviderUnavailable)
	}
	if len(referenceImages) == 0 {
		return Handle{}, fmt.Errorf("runway: %w: at least one reference image is required", domain.ErrInvalidInput)
	}

	body := runwayCreateRequest{
		Model:       coalesce(params.Model, r.model),
		PromptImage: referenceImages[0],
		PromptText:  prompt,
		Ratio:       coalesce(params.Ratio, r.ratio),
		Duration:    r.duration,
	}
	if params.DurationSeconds > 0 {
		body.Duration = params.DurationSeconds
	}

	var task runwayTask
	if err := r.call(ctx, http.MethodPost, "/v1/image_to_video", body, &task); err != nil {
		return Handle{}, err
	}
	if task.ID == "" {
		return Handle{}, fmt.Errorf("runway: create response missing task id")
	}
	r.logger.Debug().Str("task_id", task.ID).Str("model", body.Model).Msg("runway: task created")
	return Handle{ID: task.ID}, nil
}

func (r *Runway) Poll(ctx context.Context, h Handle) (PollResult, error) {
	if !r.Available() {
		return PollResult{}, fmt.Errorf("runway: %w: RUNWAY_API_KEY is not set", domain.ErrProviderUnavailable)
	}
	var task runwayTask
	if err := r.call(ctx, http.MethodGet, "/v1/tasks/"+h.ID, nil, &task); err != nil {
		return PollResult{}, err
	}
	res := PollResult{
		Status:      mapRunwayStatus(task.Status),
		Output:      task.Output,
		ErrorDetail: task.Failure,
	}
	if res.Status == StatusFailed && res.ErrorDetail == "" {
		res.ErrorDetail = "runway reported FAILED without detail"
	}
	return res, nil
}

func (r *Runway) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("runway: encode request: %w", err)
		}
		reader = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("runway: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("X-Runway-Version", runwayAPIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("runway: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("runway: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr runwayErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("runway: %s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("runway: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("runway: decode response: %w", err)
		}
	}
	return nil
}

func mapRunwayStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING", "THROTTLED":
		return StatusQueued
	case "SUCCEEDED":
		return StatusSucceeded
	case "FAILED", "CANCELLED":
		return StatusFailed
	case "RUNNING":
		return StatusRunning
	default:
		// tolerate vendor status vocabulary growth
		return StatusRunning
	}
}

var _ Provider = (*Runway)(nil)
