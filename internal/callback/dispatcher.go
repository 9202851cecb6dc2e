package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genworker/internal/domain"
	"genworker/internal/infra"
)

// rawBodyLimit bounds the diagnostic excerpt captured from downstream
// responses. Enough for operator triage, small enough for log lines.
const rawBodyLimit = 1000

// Options configures the dispatcher.
type Options struct {
	TargetURL  string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Dispatcher delivers terminal generation results to the downstream service.
// Deliver never returns an error: every failure mode, including transport
// failures, is encoded in the CallbackOutcome.
type Dispatcher struct {
	targetURL  string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewDispatcher constructs a dispatcher with sane defaults.
func NewDispatcher(opts Options) *Dispatcher {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Dispatcher{
		targetURL:  opts.TargetURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Deliver POSTs the payload as JSON and classifies the downstream response.
//
// The only automatic retry in the dispatcher lives here: when a 400/422
// response body's data object carries exactly the payload's own field names
// ({result, assetId, type}), the downstream evidently expected form-encoded
// fields, and the same payload is re-sent once as form data. Every other
// non-2xx outcome is terminal and reported upward.
func (d *Dispatcher) Deliver(ctx context.Context, payload domain.CallbackPayload) domain.CallbackOutcome {
	body, err := json.Marshal(payload)
	if err != nil {
		return d.networkOutcome("encode callback payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.targetURL, bytes.NewReader(body))
	if err != nil {
		return d.networkOutcome("build callback request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return d.networkOutcome("send callback", err)
	}
	return d.classify(ctx, payload, resp, false)
}

func (d *Dispatcher) classify(ctx context.Context, payload domain.CallbackPayload, resp *http.Response, formAttempted bool) domain.CallbackOutcome {
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return d.networkOutcome("read callback response", err)
	}
	excerpt := truncate(string(raw), rawBodyLimit)

	var parsed map[string]any
	bodyIsJSON := json.Unmarshal(raw, &parsed) == nil && parsed != nil

	switch {
	case resp.StatusCode == http.StatusOK:
		d.logger.Info().
			Str("asset_id", payload.AssetID).
			Str("result", string(payload.Result)).
			Bool("form", formAttempted).
			Msg("callback: delivered")
		if bodyIsJSON {
			return outcome(domain.OutcomeOK, resp.StatusCode, "callback delivered", parsed)
		}
		return outcome(domain.OutcomeOK, resp.StatusCode, "callback returned non-JSON body", map[string]any{"rawBody": excerpt})

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		diag := d.diagnostics(resp, excerpt, payload)
		d.logger.Warn().
			Str("asset_id", payload.AssetID).
			Int("status", resp.StatusCode).
			Interface("diagnostics", diag).
			Msg("callback: validation rejection")
		if !formAttempted && wantsFormFields(parsed) {
			return d.deliverForm(ctx, payload)
		}
		return outcome(domain.OutcomeValidationError, resp.StatusCode, "validation failed at callback target", diag)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		diag := d.diagnostics(resp, excerpt, payload)
		d.logger.Error().
			Str("asset_id", payload.AssetID).
			Int("status", resp.StatusCode).
			Interface("diagnostics", diag).
			Msg("callback: target requires authentication")
		return outcome(domain.OutcomeUnauthorized, resp.StatusCode, "callback target requires authentication", diag)

	case resp.StatusCode >= http.StatusInternalServerError:
		diag := d.diagnostics(resp, excerpt, payload)
		d.logger.Error().
			Str("asset_id", payload.AssetID).
			Int("status", resp.StatusCode).
			Interface("diagnostics", diag).
			Msg("callback: downstream server error")
		return outcome(domain.OutcomeSpringError, resp.StatusCode, "downstream server error", diag)

	default:
		diag := d.diagnostics(resp, excerpt, payload)
		d.logger.Warn().
			Str("asset_id", payload.AssetID).
			Int("status", resp.StatusCode).
			Interface("diagnostics", diag).
			Msg("callback: unexpected status")
		return outcome(domain.OutcomeUnknownError, resp.StatusCode, "unexpected callback response status", diag)
	}
}

// deliverForm re-encodes the payload as application/x-www-form-urlencoded and
// sends it once. No further retries regardless of the answer.
func (d *Dispatcher) deliverForm(ctx context.Context, payload domain.CallbackPayload) domain.CallbackOutcome {
	form := url.Values{}
	form.Set("assetId", payload.AssetID)
	form.Set("result", string(payload.Result))
	form.Set("assetUrl", payload.AssetURL)
	form.Set("type", payload.Kind)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.targetURL, strings.NewReader(form.Encode()))
	if err != nil {
		return d.networkOutcome("build form retry request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	d.logger.Info().
		Str("asset_id", payload.AssetID).
		Msg("callback: retrying once with form encoding")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return d.networkOutcome("send form retry", err)
	}
	return d.classify(ctx, payload, resp, true)
}

// wantsFormFields detects the downstream shape that indicates the target
// expected form parameters: a data object echoing the payload's field names.
func wantsFormFields(body map[string]any) bool {
	if body == nil {
		return false
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		return false
	}
	for _, key := range []string{"result", "assetId", "type"} {
		if _, ok := data[key]; !ok {
			return false
		}
	}
	return true
}

func (d *Dispatcher) diagnostics(resp *http.Response, excerpt string, payload domain.CallbackPayload) map[string]any {
	headers := map[string]string{}
	for k, v := range resp.Header {
		headers[k] = strings.Join(v, ", ")
	}
	responseURL := d.targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		responseURL = resp.Request.URL.String()
	}
	return map[string]any{
		"requestMethod":   http.MethodPost,
		"requestUrl":      d.targetURL,
		"responseUrl":     responseURL,
		"responseHeaders": headers,
		"rawBody":         excerpt,
		"payload":         payload,
	}
}

func (d *Dispatcher) networkOutcome(action string, err error) domain.CallbackOutcome {
	d.logger.Error().Err(err).Str("action", action).Msg("callback: transport failure")
	return outcome(domain.OutcomeNetworkError, 0, action+" failed", map[string]any{"error": err.Error()})
}

func outcome(code domain.OutcomeCode, status int, message string, data map[string]any) domain.CallbackOutcome {
	return domain.CallbackOutcome{
		Code:      code,
		Status:    status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
