// Package queue implements the Job Queue Scheduler (spec.md §4.H): a
// single worker goroutine owns all queue state, and every mutation -
// both user commands and job-completion notifications - arrives as a
// message over one channel so the state machine never needs a mutex.
// Grounded on the teacher's queueWorker/executeTask goroutine-per-job
// dispatch pattern (internal/engine/executor.go) and on the original
// implementation's mpsc worker loop (downloading/queue.rs).
package queue

import (
	"context"
	"time"

	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/progress"
	"github.com/Minlor/TwintailLauncher/internal/token"
)

// historyCap is the bounded, FIFO-evicted terminal job history size
// (spec.md §4.H).
const historyCap = 25

// pollInterval bounds how long the worker loop can sit idle between
// polls for completion plumbing, matching spec.md §4.H's "~200ms" note.
// Go's select already blocks without busy-looping, so this is a safety
// net rather than the only wakeup source.
const pollInterval = 200 * time.Millisecond

// Runner executes one job to completion or cancellation. It must poll
// handle.Cancelled() (or honor ctx) at every I/O boundary. Implementations
// live in internal/transfer; the scheduler only depends on this signature
// so it never imports engine internals.
type Runner func(ctx context.Context, job *model.Job, handle *token.Handle) (model.Outcome, error)

// Scheduler is the Job Queue Scheduler. Construct with NewScheduler and
// call Run in its own goroutine before issuing commands.
type Scheduler struct {
	cmdCh         chan command
	runner        Runner
	tokens        *token.Registry
	emitter       *progress.Emitter
	maxConcurrent int
}

// NewScheduler builds a Scheduler. runner is invoked once per dispatched
// job on its own goroutine.
func NewScheduler(runner Runner, tokens *token.Registry, emitter *progress.Emitter, maxConcurrent int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		cmdCh:         make(chan command, 64),
		runner:        runner,
		tokens:        tokens,
		emitter:       emitter,
		maxConcurrent: maxConcurrent,
	}
}

// Run drives the worker loop until ctx is cancelled. Call it exactly
// once, in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	st := newState(s.maxConcurrent)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmdCh:
			s.handle(ctx, st, cmd)
		case <-ticker.C:
			// Poll tick: nothing to do by itself, dispatch() below already
			// runs after every command; this just bounds idle latency.
		}
		s.dispatch(ctx, st)
	}
}

func (s *Scheduler) send(cmd command) {
	s.cmdCh <- cmd
}

func (s *Scheduler) request(build func(reply chan any) command) any {
	reply := make(chan any, 1)
	s.send(build(reply))
	return <-reply
}

// EnqueueJob admits a new job. Duplicate installs (any Queued, Running
// or Paused entry for the same install id, regardless of kind) are
// rejected (Open Question #1, SPEC_FULL.md).
func (s *Scheduler) EnqueueJob(kind model.JobKind, installID, name string, payload any) (uint64, error) {
	res := s.request(func(reply chan any) command {
		return command{kind: cmdEnqueue, job: &model.Job{Kind: kind, InstallID: installID, Name: name, Payload: payload}, reply: reply}
	})
	r := res.(enqueueResult)
	return r.id, r.err
}

// PauseInstall cancels the running job for installID (if any) so it
// lands in paused_jobs rather than history.
func (s *Scheduler) PauseInstall(installID string) {
	s.send(command{kind: cmdPauseInstall, installID: installID})
}

// ActivateJob promotes jobID to the head of the queue, flushes every
// paused job back into the queue at the tail, and preempts every running
// job belonging to a different install (spec.md §4.H Activation).
func (s *Scheduler) ActivateJob(jobID uint64) error {
	res := s.request(func(reply chan any) command {
		return command{kind: cmdActivateJob, jobID: jobID, reply: reply}
	})
	if err, ok := res.(error); ok {
		return err
	}
	return nil
}

// ResumeJob moves a paused job back to the front of the queue.
func (s *Scheduler) ResumeJob(installID string) error {
	res := s.request(func(reply chan any) command {
		return command{kind: cmdResumeJob, installID: installID, reply: reply}
	})
	if err, ok := res.(error); ok {
		return err
	}
	return nil
}

// SetQueuePaused halts (or resumes) new dispatch without touching
// running jobs.
func (s *Scheduler) SetQueuePaused(paused bool) {
	s.send(command{kind: cmdSetPaused, paused: paused})
}

// AutoPause idempotently pauses the queue and marks it auto-paused
// (spec.md §4.H / §4.I).
func (s *Scheduler) AutoPause() {
	s.send(command{kind: cmdAutoPause})
}

// AutoResume unpauses only if the queue was auto-paused.
func (s *Scheduler) AutoResume() {
	s.send(command{kind: cmdAutoResume})
}

// MoveUp/MoveDown/Reorder/Remove operate on Queued entries only and are
// no-ops for Running or Paused jobs.
func (s *Scheduler) MoveUp(jobID uint64) error    { return s.reorderCmd(cmdMoveUp, jobID, 0) }
func (s *Scheduler) MoveDown(jobID uint64) error  { return s.reorderCmd(cmdMoveDown, jobID, 0) }
func (s *Scheduler) Remove(jobID uint64) error    { return s.reorderCmd(cmdRemove, jobID, 0) }
func (s *Scheduler) Reorder(jobID uint64, position int) error {
	return s.reorderCmd(cmdReorder, jobID, position)
}

func (s *Scheduler) reorderCmd(kind commandKind, jobID uint64, position int) error {
	res := s.request(func(reply chan any) command {
		return command{kind: kind, jobID: jobID, position: position, reply: reply}
	})
	if err, ok := res.(error); ok {
		return err
	}
	return nil
}

// RemoveByInstallID removes every Queued entry for installID.
func (s *Scheduler) RemoveByInstallID(installID string) {
	s.send(command{kind: cmdRemoveByInstallID, installID: installID})
}

// ClearCompleted empties the terminal job history.
func (s *Scheduler) ClearCompleted() {
	s.send(command{kind: cmdClearCompleted})
}

// GetQueueState returns a full snapshot (spec.md §6).
func (s *Scheduler) GetQueueState() model.QueueState {
	res := s.request(func(reply chan any) command {
		return command{kind: cmdGetState, reply: reply}
	})
	return res.(model.QueueState)
}
