package domain

import "time"

// Kind identifies which generation provider a job is routed to.
type Kind string

const (
	KindImage   Kind = "IMAGE"
	KindVideoV1 Kind = "VIDEO_V1"
	KindVideoV2 Kind = "VIDEO_V2"
)

// ParseKind resolves an upper-cased job type string to a Kind. Resolution
// happens once per record; call sites never re-inspect the raw string.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindImage, KindVideoV1, KindVideoV2:
		return Kind(s), true
	}
	return "", false
}

// JobRequest is the typed form of an inbound queue record. Immutable once
// parsed.
type JobRequest struct {
	ID              string         `json:"jobId"`
	Kind            Kind           `json:"kind"`
	Prompt          string         `json:"prompt"`
	ReferenceImages []string       `json:"referenceImages,omitempty"`
	Origin          map[string]any `json:"origin,omitempty"`
}

// State tracks a generation job from submission to a terminal outcome.
type State string

const (
	StateQueued    State = "QUEUED"
	StateDreaming  State = "DREAMING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateTimeout   State = "TIMEOUT"
)

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimeout:
		return true
	}
	return false
}

// GenerationRecord is created when a provider accepts a submission and is
// mutated only by the orchestrator's poll loop until a terminal state.
type GenerationRecord struct {
	ID        string
	State     State
	CreatedAt time.Time
	AssetURL  string
	Error     string
}

// Result is the outcome reported to the downstream callback consumer.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFail    Result = "FAIL"
)

// CallbackPayload is the body POSTed to the downstream callback endpoint.
type CallbackPayload struct {
	AssetID  string `json:"assetId"`
	Result   Result `json:"result"`
	AssetURL string `json:"assetUrl,omitempty"`
	Kind     string `json:"type"`
}

// NewCallbackPayload derives the callback body from a terminal record.
// SUCCESS requires both a COMPLETED state and a retrievable asset URL; a
// provider "success" without an asset is reported as FAIL.
func NewCallbackPayload(req JobRequest, rec GenerationRecord) CallbackPayload {
	result := ResultFail
	if rec.State == StateCompleted && rec.AssetURL != "" {
		result = ResultSuccess
	}
	return CallbackPayload{
		AssetID:  req.ID,
		Result:   result,
		AssetURL: rec.AssetURL,
		Kind:     string(req.Kind),
	}
}

// OutcomeCode classifies a callback delivery attempt.
type OutcomeCode string

const (
	OutcomeOK              OutcomeCode = "OK"
	OutcomeValidationError OutcomeCode = "VALIDATION_ERROR"
	OutcomeUnauthorized    OutcomeCode = "UNAUTHORIZED"
	OutcomeSpringError     OutcomeCode = "SPRING_ERROR"
	OutcomeUnknownError    OutcomeCode = "UNKNOWN_ERROR"
	OutcomeNetworkError    OutcomeCode = "NETWORK_ERROR"
)

// CallbackOutcome is the dispatcher's report of one delivery attempt. The
// dispatcher never returns errors; every failure mode is encoded here.
type CallbackOutcome struct {
	Code      OutcomeCode    `json:"code"`
	Status    int            `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
