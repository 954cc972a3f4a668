// Package model holds the plain data types shared by the queue scheduler,
// transfer engines, and progress emitter. None of these types own any
// behavior beyond simple accessors — the packages that mutate them own the
// synchronization.
package model

import "time"

// JobKind identifies what an install-scoped job does.
type JobKind string

const (
	JobDownload    JobKind = "download"
	JobUpdate      JobKind = "update"
	JobPreload     JobKind = "preload"
	JobRepair      JobKind = "repair"
	JobRunnerFetch JobKind = "runner_fetch"
	JobRuntime     JobKind = "runtime_fetch"
	JobExtras      JobKind = "extras_fetch"
)

// JobStatus is the current lifecycle state of a Job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
	StatusPaused    JobStatus = "paused"
)

// Job is a unit of work the scheduler orders and activates. Payload carries
// kind-specific parameters (segment URLs, manifest URLs, diff descriptors)
// and is opaque to the scheduler.
type Job struct {
	ID        uint64
	Kind      JobKind
	InstallID string
	Name      string
	Payload   any
	Status    JobStatus
	CreatedAt time.Time
}

// View is the UI-facing projection of a Job, matching the wire shape in
// SPEC_FULL.md §6 (`download_queue_state` event's per-job entries).
type View struct {
	ID        uint64    `json:"id"`
	Kind      JobKind   `json:"kind"`
	InstallID string    `json:"install_id"`
	Name      string    `json:"name"`
	Status    JobStatus `json:"status"`
}

// ViewOf projects a Job into its wire-facing View.
func ViewOf(j *Job) View {
	return View{ID: j.ID, Kind: j.Kind, InstallID: j.InstallID, Name: j.Name, Status: j.Status}
}

// QueueState is the full snapshot published after every scheduler command,
// matching the `download_queue_state` UI event.
type QueueState struct {
	MaxConcurrent   int      `json:"max_concurrent"`
	Paused          bool     `json:"paused"`
	AutoPaused      bool     `json:"auto_paused"`
	Running         []View   `json:"running"`
	Queued          []View   `json:"queued"`
	Completed       []View   `json:"completed"`
	PausedJobs      []View   `json:"paused_jobs"`
	PausingInstalls []string `json:"pausing_installs"`
}

// Outcome is the three-valued result of a finished job run.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

// ResumeStates is the mutually-exclusive §4.G resume-state projection for
// a single install.
type ResumeStates struct {
	Downloading bool `json:"downloading"`
	Updating    bool `json:"updating"`
	Preloading  bool `json:"preloading"`
	Repairing   bool `json:"repairing"`
}
