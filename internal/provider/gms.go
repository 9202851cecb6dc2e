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

// GMSImageOptions configures the image client, an OpenAI-compatible images
// API reached through the GMS proxy.
type GMSImageOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Size       string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// GMSImage generates images through an OpenAI-compatible endpoint. The API is
// synchronous, so the terminal result is produced at submission time and the
// handle carries it; Poll just replays the stored observation.
type GMSImage struct {
	apiKey     string
	baseURL    string
	model      string
	size       string
	httpClient *http.Client
	logger     *infra.Logger
}

type gmsImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type gmsImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewGMSImage constructs the client with sane defaults. A missing API key does
// not fail construction; the provider reports unavailable instead.
func NewGMSImage(opts GMSImageOptions) *GMSImage {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://gms.ssafy.io/gmsapi/api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "dall-e-3"
	}
	size := strings.TrimSpace(opts.Size)
	if size == "" {
		size = "1024x1024"
	}
	return &GMSImage{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		size:       size,
		httpClient: httpClient,
		logger:     ensureLogger(opts.Logger),
	}
}

func (g *GMSImage) Name() string { return "gms-image" }

func (g *GMSImage) Available() bool { return g.apiKey != "" }

func (g *GMSImage) Submit(ctx context.Context, prompt string, referenceImages []string, params Params) (Handle, error) {
	if !g.Available() {
		return Handle{}, fmt.Errorf("gms-image: %w: GMS_API_KEY is not set", domain.ErrProviderUnavailable)
	}

	body := gmsImageRequest{
		Model:          coalesce(params.Model, g.model),
		Prompt:         prompt,
		Size:           g.size,
		N:              1,
		ResponseFormat: "url",
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return Handle{}, fmt.Errorf("gms-image: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/generations", buf)
	if err != nil {
		return Handle{}, fmt.Errorf("gms-image: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Handle{}, fmt.Errorf("gms-image: generate: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Handle{}, fmt.Errorf("gms-image: read response: %w", err)
	}

	var out gmsImageResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode >= 300 {
		detail := ""
		if decodeErr == nil {
			detail = out.Error.Message
		}
		// vendor rejections are terminal for the job, not infrastructure errors
		result := &PollResult{
			Status:      StatusFailed,
			ErrorDetail: fmt.Sprintf("gms-image: status %d: %s", resp.StatusCode, coalesce(detail, truncate(string(raw), 200))),
		}
		return Handle{ID: body.Model, result: result}, nil
	}
	if decodeErr != nil {
		return Handle{}, fmt.Errorf("gms-image: decode response: %w", decodeErr)
	}

	result := &PollResult{Status: StatusSucceeded}
	for _, d := range out.Data {
		if d.URL != "" {
			result.Output = append(result.Output, d.URL)
		}
	}
	g.logger.Debug().Int("assets", len(result.Output)).Str("model", body.Model).Msg("gms-image: generation done")
	return Handle{ID: body.Model, result: result}, nil
}

func (g *GMSImage) Poll(ctx context.Context, h Handle) (PollResult, error) {
	if !g.Available() {
		return PollResult{}, fmt.Errorf("gms-image: %w: GMS_API_KEY is not set", domain.ErrProviderUnavailable)
	}
	if h.result == nil {
		return PollResult{}, fmt.Errorf("gms-image: handle carries no result")
	}
	return *h.result, nil
}

var _ Provider = (*GMSImage)(nil)
