package domain

import "errors"

var (
	// ErrMalformedMessage marks a queue record whose fields cannot be decoded
	// into a JobRequest. The record is dead-lettered, never retried.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidInput marks a request that is structurally valid but missing
	// an input the selected provider requires (e.g. reference images).
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderUnavailable means the provider client was never initialized,
	// usually because credentials are missing. Callers must treat the job as
	// failed rather than retry.
	ErrProviderUnavailable = errors.New("provider unavailable")
)
