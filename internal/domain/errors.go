package domain

import "errors"

// Error kinds returned by the search core. Every error leaving the core
// matches exactly one of the first four via errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrStorage             = errors.New("storage error")

	// ErrConflict is returned by a store when a search for the same triple
	// already exists. The orchestrator resolves it; callers never see it.
	ErrConflict = errors.New("search already exists")
)
