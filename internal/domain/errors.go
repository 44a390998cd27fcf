package domain

import "errors"

// Sentinel errors checked with errors.Is across package boundaries.
var (
	// ErrInvalidRiskInput marks risk profile inputs the profiler cannot
	// work with, such as a non-positive entry price or risk percent.
	ErrInvalidRiskInput = errors.New("invalid risk input")

	// ErrNoReferenceBar is returned when execution is asked to fill an
	// order without a bar to price it against.
	ErrNoReferenceBar = errors.New("no reference bar for execution")

	// ErrDataUnavailable means a store has no data at all for a request.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInsufficientData means data exists but is too short for the
	// requested operation, for example a warmup window.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInsufficientWindow means a walk-forward layout cannot produce a
	// single step from the configured chunk counts.
	ErrInsufficientWindow = errors.New("insufficient window for walk-forward")
)
