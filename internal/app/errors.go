package service

import "errors"

// Sentinel kinds for orchestration errors.
var (
	// ErrNoSources is returned when a run resolves to no enabled source.
	ErrNoSources = errors.New("no sources to run")
	// ErrNotStarted marks a job the run never got to, e.g. after shutdown.
	ErrNotStarted = errors.New("source job not started")
	// ErrJobPanic marks a source job that panicked.
	ErrJobPanic = errors.New("source job panicked")
)
