package db

import "errors"

var (
	// ErrAlreadyQueued reports that an equivalent open job exists for the
	// target. Callers treat this as successful dedup, not a failure.
	ErrAlreadyQueued = errors.New("job already queued for target")

	// ErrStaleTransition reports a complete/fail call against a job that
	// is no longer running: the caller's lease expired or was superseded.
	ErrStaleTransition = errors.New("stale job transition")

	// ErrNotFound reports a missing row.
	ErrNotFound = errors.New("record not found")
)
