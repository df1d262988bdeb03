package scheduler

import "errors"

// Sentinel kinds for scheduler errors.
var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
	ErrCycleQueued    = errors.New("a check cycle is already queued")
	ErrListTargets    = errors.New("list targets")
)
