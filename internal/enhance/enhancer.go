package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Enhancer rewrites a raw user prompt into one better suited for the
// generation providers. Implementations always terminate and return a usable
// string; degraded operation returns the input decorated or unchanged.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

const systemInstruction = "You are a prompt engineer for a food-brand media studio. " +
	"Rewrite the user's prompt into one vivid English sentence describing an appetizing " +
	"promotional image or short video. Keep the subject, add lighting and composition detail, " +
	"and answer with the rewritten prompt only."

// Static is the deterministic fallback enhancer: it appends house style
// guidance to the raw prompt.
type Static struct{}

func NewStatic() *Static {
	return &Static{}
}

func (s *Static) Enhance(ctx context.Context, prompt string) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", errors.New("prompt is empty")
	}
	c := cases.Title(language.Und)
	style := c.String("vivid studio lighting, appetizing composition, high detail")
	return fmt.Sprintf("%s. %s.", strings.TrimRight(trimmed, "."), style), nil
}

var _ Enhancer = (*Static)(nil)

// OpenAIOptions configures the chat-completions enhancer.
type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Fallback   Enhancer
	OnFallback func(reason string, err error)
}

// OpenAI enhances prompts through an OpenAI-compatible chat-completions API
// and falls back to a deterministic enhancer on any failure. Enhancement is
// best-effort: it never fails the job it serves.
type OpenAI struct {
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	fallback   Enhancer
	onFallback func(reason string, err error)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAI constructs the enhancer. A missing API key is not an error; every
// call simply takes the fallback path.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewStatic()
	}
	return &OpenAI{
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		baseURL:    baseURL,
		client:     client,
		fallback:   fallback,
		onFallback: opts.OnFallback,
	}
}

func (o *OpenAI) Enhance(ctx context.Context, prompt string) (string, error) {
	if o.apiKey == "" {
		return o.useFallback(ctx, prompt, "missing_api_key", nil)
	}
	payload := chatRequest{
		Model:       o.model,
		Temperature: 0.6,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: prompt},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return o.useFallback(ctx, prompt, "encode_request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", &buf)
	if err != nil {
		return o.useFallback(ctx, prompt, "build_request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return o.useFallback(ctx, prompt, "http_request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return o.useFallback(ctx, prompt, fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("openai status %d", resp.StatusCode))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return o.useFallback(ctx, prompt, "decode_response", err)
	}
	if len(out.Choices) == 0 {
		return o.useFallback(ctx, prompt, "empty_choices", errors.New("no choices"))
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return o.useFallback(ctx, prompt, "empty_response", errors.New("empty response"))
	}
	return text, nil
}

func (o *OpenAI) useFallback(ctx context.Context, prompt, reason string, err error) (string, error) {
	if o.onFallback != nil {
		o.onFallback(reason, err)
	}
	return o.fallback.Enhance(ctx, prompt)
}

var _ Enhancer = (*OpenAI)(nil)
