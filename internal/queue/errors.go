package queue

import "errors"

var (
	// ErrDuplicateInstall is returned by EnqueueJob when the install
	// already has a Queued, Running or Paused entry, regardless of kind
	// (Open Question #1, SPEC_FULL.md).
	ErrDuplicateInstall = errors.New("queue: install already has a pending job")
	// ErrJobNotFound is returned by ActivateJob when the target job id is
	// neither queued nor paused. The Reorder-family commands never return
	// it: on a job that isn't queued they are no-ops.
	ErrJobNotFound = errors.New("queue: job not found")
	// ErrNotPaused is returned by ResumeJob when the install has no
	// paused entry.
	ErrNotPaused = errors.New("queue: install has no paused job")
)
