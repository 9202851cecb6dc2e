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

// LumaOptions configures the Luma Dream Machine client.
type LumaOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Luma drives Luma's Dream Machine video API. Prompt-only: reference images
// are optional and ignored by the current integration.
type Luma struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type lumaCreateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

type lumaGeneration struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Assets struct {
		Video string `json:"video"`
	} `json:"assets"`
	FailureReason string `json:"failure_reason"`
}

// NewLuma constructs the client with sane defaults. A missing API key does not
// fail construction; the provider reports unavailable instead.
func NewLuma(opts LumaOptions) *Luma {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.lumalabs.ai/dream-machine/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "ray-2"
	}
	return &Luma{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     ensureLogger(opts.Logger),
	}
}

func (l *Luma) Name() string { return "luma" }

func (l *Luma) Available() bool { return l.apiKey != "" }

func (l *Luma) Submit(ctx context.Context, prompt string, referenceImages []string, params Params) (Handle, error) {
	if !l.Available() {
		return Handle{}, fmt.Errorf("luma: %w: LUMAAI_API_KEY is not set", domain.ErrProviderUnavailable)
	}
	body := lumaCreateRequest{
		Prompt: prompt,
		Model:  coalesce(params.Model, l.model),
	}
	var gen lumaGeneration
	if err := l.call(ctx, http.MethodPost, "/generations", body, &gen); err != nil {
		return Handle{}, err
	}
	if gen.ID == "" {
		return Handle{}, fmt.Errorf("luma: create response missing generation id")
	}
	l.logger.Debug().Str("generation_id", gen.ID).Str("model", body.Model).Msg("luma: generation created")
	return Handle{ID: gen.ID}, nil
}

func (l *Luma) Poll(ctx context.Context, h Handle) (PollResult, error) {
	if !l.Available() {
		return PollResult{}, fmt.Errorf("luma: %w: LUMAAI_API_KEY is not set", domain.ErrProviderUnavailable)
	}
	var gen lumaGeneration
	if err := l.call(ctx, http.MethodGet, "/generations/"+h.ID, nil, &gen); err != nil {
		return PollResult{}, err
	}
	res := PollResult{
		Status:      mapLumaState(gen.State),
		ErrorDetail: gen.FailureReason,
	}
	if gen.Assets.Video != "" {
		res.Output = []string{gen.Assets.Video}
	}
	if res.Status == StatusFailed && res.ErrorDetail == "" {
		res.ErrorDetail = "luma reported failed without reason"
	}
	return res, nil
}

func (l *Luma) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("luma: encode request: %w", err)
		}
		reader = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("luma: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("luma: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("luma: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("luma: %s %s: status %d: %s", method, path, resp.StatusCode, truncate(string(raw), 200))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("luma: decode response: %w", err)
		}
	}
	return nil
}

func mapLumaState(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued":
		return StatusQueued
	case "dreaming":
		return StatusRunning
	case "completed":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	default:
		return StatusRunning
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Provider = (*Luma)(nil)
