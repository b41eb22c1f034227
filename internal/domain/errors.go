package domain

import "errors"

// Error taxonomy shared across the engine. Callers classify failures with
// errors.Is against these sentinels; wrapping adds detail without changing
// the kind.
var (
	// ErrValidation - request malformed or semantically inconsistent
	// (start >= end, empty universe, threshold out of range).
	ErrValidation = errors.New("validation error")

	// ErrDataUnavailable - upstream data missing or insufficient to proceed.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrNumerical - a non-finite value was produced in pricing, indicators
	// or metrics. Fatal to the current run, never masked.
	ErrNumerical = errors.New("numerical error")

	// ErrCancelled - cooperative cancellation observed.
	ErrCancelled = errors.New("cancelled")

	// ErrDeadline - per-job deadline exceeded.
	ErrDeadline = errors.New("deadline exceeded")

	// ErrNotFound - registry or store lookup missed.
	ErrNotFound = errors.New("not found")

	// ErrNotReady - result requested for a job that is not COMPLETED.
	ErrNotReady = errors.New("not ready")
)
