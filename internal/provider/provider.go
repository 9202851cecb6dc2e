package provider

import (
	"context"

	"genworker/internal/domain"
)

// Status is the shared taxonomy every vendor vocabulary is mapped onto.
// Unknown vendor statuses map to StatusRunning so that vendor API evolution
// never turns into a hard failure mid-poll.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Params carries vendor tuning knobs selected per job kind.
type Params struct {
	Model           string
	Ratio           string
	DurationSeconds int
}

// Handle identifies one accepted submission at the vendor. Providers that
// complete at submission time carry their terminal result inside the handle.
type Handle struct {
	ID string

	result *PollResult
}

// PollResult is one observation of a vendor-side job.
type PollResult struct {
	Status      Status
	Output      []string
	ErrorDetail string
}

// Provider is the capability interface for one backing generation service.
type Provider interface {
	// Name identifies the provider in logs and diagnostics.
	Name() string
	// Available reports whether the client was initialized with credentials.
	// When false, Submit and Poll fail fast without network I/O.
	Available() bool
	Submit(ctx context.Context, prompt string, referenceImages []string, params Params) (Handle, error)
	Poll(ctx context.Context, h Handle) (PollResult, error)
}

// Registry maps job kinds to provider instances. Resolution happens once per
// record, never re-inspected at each call site.
type Registry map[domain.Kind]Provider

// For returns the provider wired for the given kind.
func (r Registry) For(kind domain.Kind) (Provider, bool) {
	p, ok := r[kind]
	return p, ok
}
