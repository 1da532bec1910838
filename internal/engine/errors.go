package engine

import "errors"

// Sentinel errors for the engine's two failure taxonomies. Callers compare
// with errors.Is; the wrapped message carries no extra context beyond what
// the sentinel already says, matching the original's plain enum Display.
var (
	// ErrProfileNotFound: selection failed for the current active profile
	// plus plan source. Surfaced on ProfileChanged/Reload; suppressed after
	// the first occurrence per configuration epoch during ticks.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInvalidProfileName: empty profile name on ProfileChanged.
	ErrInvalidProfileName = errors.New("invalid profile name")

	// ErrAlreadyPaused: ManualPause while already manually paused.
	ErrAlreadyPaused = errors.New("already paused")

	// ErrNotPaused: ManualResume while not manually paused.
	ErrNotPaused = errors.New("not paused")
)
