package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"genworker/internal/domain"
)

// envelope mirrors the wire shape of a queue record before validation. Nested
// fields may arrive either as JSON values or as JSON-encoded strings.
type envelope struct {
	ID              string          `json:"jobId"`
	Kind            string          `json:"kind"`
	Prompt          string          `json:"prompt"`
	ReferenceImages json.RawMessage `json:"referenceImages"`
	Origin          json.RawMessage `json:"origin"`
}

// Parse decodes the string fields of one stream record into a JobRequest.
//
// Records arrive either as a single JSON-encoded "payload" field or as a flat
// field set whose keys match the JobRequest schema. The nested origin object
// and the reference-image list may themselves be JSON-encoded strings; those
// get a secondary decode attempt, and on failure the raw string is kept as-is.
// Schema validation, not the decode step, decides whether the record is
// acceptable.
func Parse(fields map[string]string) (domain.JobRequest, error) {
	data, err := deserializeFields(fields)
	if err != nil {
		return domain.JobRequest{}, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.JobRequest{}, fmt.Errorf("%w: decode envelope: %v", domain.ErrMalformedMessage, err)
	}

	req := domain.JobRequest{
		ID:     strings.TrimSpace(env.ID),
		Prompt: env.Prompt,
	}

	if req.ID == "" {
		return domain.JobRequest{}, fmt.Errorf("%w: jobId is required", domain.ErrMalformedMessage)
	}
	if strings.TrimSpace(env.Prompt) == "" {
		return domain.JobRequest{}, fmt.Errorf("%w: prompt is required", domain.ErrMalformedMessage)
	}
	kind, ok := domain.ParseKind(strings.ToUpper(strings.TrimSpace(env.Kind)))
	if !ok {
		return domain.JobRequest{}, fmt.Errorf("%w: unknown kind %q", domain.ErrMalformedMessage, env.Kind)
	}
	req.Kind = kind

	if len(env.ReferenceImages) > 0 {
		var refs []string
		if err := json.Unmarshal(env.ReferenceImages, &refs); err != nil {
			return domain.JobRequest{}, fmt.Errorf("%w: referenceImages must be a string list", domain.ErrMalformedMessage)
		}
		req.ReferenceImages = refs
	}
	if len(env.Origin) > 0 {
		var origin map[string]any
		if err := json.Unmarshal(env.Origin, &origin); err != nil {
			return domain.JobRequest{}, fmt.Errorf("%w: origin must be an object", domain.ErrMalformedMessage)
		}
		req.Origin = origin
	}

	return req, nil
}

// deserializeFields normalizes the raw field mapping into one JSON document.
func deserializeFields(fields map[string]string) ([]byte, error) {
	data := map[string]any{}
	if payload, ok := fields["payload"]; ok {
		if err := json.Unmarshal([]byte(payload), &data); err != nil {
			return nil, fmt.Errorf("%w: decode payload field: %v", domain.ErrMalformedMessage, err)
		}
	} else {
		for k, v := range fields {
			data[k] = v
		}
	}

	// Known nested fields may be double-encoded by upstream producers. Decode
	// failure here is non-fatal: keep the raw string and let schema validation
	// be the authority.
	for _, key := range []string{"origin", "referenceImages"} {
		if raw, ok := data[key].(string); ok {
			var nested any
			if err := json.Unmarshal([]byte(raw), &nested); err == nil {
				data[key] = nested
			}
		}
	}

	return json.Marshal(data)
}
