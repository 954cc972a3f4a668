package queue

import (
	"context"
	"time"

	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/token"
)

func (s *Scheduler) handle(ctx context.Context, st *state, cmd command) {
	switch cmd.kind {
	case cmdEnqueue:
		s.handleEnqueue(st, cmd)
	case cmdPauseInstall:
		s.handlePauseInstall(st, cmd)
	case cmdActivateJob:
		s.handleActivateJob(st, cmd)
	case cmdResumeJob:
		s.handleResumeJob(st, cmd)
	case cmdSetPaused:
		st.paused = cmd.paused
		if !cmd.paused {
			st.autoPaused = false
		}
		reply(cmd, nil)
	case cmdAutoPause:
		if !st.paused {
			st.paused = true
			st.autoPaused = true
		}
	case cmdAutoResume:
		if st.autoPaused {
			st.paused = false
			st.autoPaused = false
		}
	case cmdMoveUp:
		s.handleMove(st, cmd, -1)
	case cmdMoveDown:
		s.handleMove(st, cmd, 1)
	case cmdRemove:
		s.handleRemove(st, cmd)
	case cmdReorder:
		s.handleReorder(st, cmd)
	case cmdRemoveByInstallID:
		s.handleRemoveByInstallID(st, cmd)
	case cmdGetState:
		reply(cmd, st.snapshot())
	case cmdClearCompleted:
		st.history = nil
	case cmdJobDone:
		s.handleJobDone(st, cmd)
	}

	if s.emitter != nil {
		s.emitter.QueueState(st.snapshot())
	}
}

func reply(cmd command, v any) {
	if cmd.reply != nil {
		cmd.reply <- v
	}
}

func (s *Scheduler) handleEnqueue(st *state, cmd command) {
	job := cmd.job
	if st.hasAnyEntry(job.InstallID) {
		reply(cmd, enqueueResult{err: ErrDuplicateInstall})
		return
	}
	st.nextJobID++
	job.ID = st.nextJobID
	job.Status = model.StatusQueued
	job.CreatedAt = time.Now()
	st.queued = append(st.queued, job)
	reply(cmd, enqueueResult{id: job.ID})
}

func (s *Scheduler) handlePauseInstall(st *state, cmd command) {
	for _, e := range st.running {
		if e.job.InstallID == cmd.installID {
			st.pausingInstalls[cmd.installID] = true
			e.cancel()
			if s.tokens != nil {
				s.tokens.Cancel(cmd.installID)
			}
			return
		}
	}
	// Nothing running for this install: if it's merely queued, park it
	// directly without ever starting it.
	idx := -1
	for i, j := range st.queued {
		if j.InstallID == cmd.installID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	job := st.queued[idx]
	st.queued = append(st.queued[:idx], st.queued[idx+1:]...)
	job.Status = model.StatusPaused
	st.pausedJobs[cmd.installID] = job
	st.pausedOrder = append(st.pausedOrder, cmd.installID)
}

func (s *Scheduler) handleActivateJob(st *state, cmd command) {
	var target *model.Job

	if idx := st.queuedIndex(cmd.jobID); idx >= 0 {
		target = st.queued[idx]
		st.queued = append(st.queued[:idx], st.queued[idx+1:]...)
	} else {
		for id, j := range st.pausedJobs {
			if j.ID == cmd.jobID {
				target = j
				st.removeFromPaused(id)
				break
			}
		}
	}

	if target == nil {
		reply(cmd, ErrJobNotFound)
		return
	}

	// Flush every remaining paused job back into the queue at the tail,
	// preserving the order they were paused in.
	for _, id := range append([]string(nil), st.pausedOrder...) {
		j := st.pausedJobs[id]
		j.Status = model.StatusQueued
		st.queued = append(st.queued, j)
	}
	st.pausedJobs = make(map[string]*model.Job)
	st.pausedOrder = nil

	target.Status = model.StatusQueued
	st.queued = append([]*model.Job{target}, st.queued...)

	st.activating = true
	st.paused = false

	for _, e := range st.running {
		if e.job.InstallID != target.InstallID {
			e.cancel()
			if s.tokens != nil {
				s.tokens.Cancel(e.job.InstallID)
			}
		}
	}

	reply(cmd, nil)
}

func (s *Scheduler) handleResumeJob(st *state, cmd command) {
	job, ok := st.pausedJobs[cmd.installID]
	if !ok {
		reply(cmd, ErrNotPaused)
		return
	}
	st.removeFromPaused(cmd.installID)
	job.Status = model.StatusQueued
	st.queued = append([]*model.Job{job}, st.queued...)
	reply(cmd, nil)
}

func (s *Scheduler) handleMove(st *state, cmd command, delta int) {
	idx := st.queuedIndex(cmd.jobID)
	if idx < 0 {
		reply(cmd, nil)
		return
	}
	j := idx + delta
	if j < 0 || j >= len(st.queued) {
		reply(cmd, nil)
		return
	}
	st.queued[idx], st.queued[j] = st.queued[j], st.queued[idx]
	reply(cmd, nil)
}

func (s *Scheduler) handleRemove(st *state, cmd command) {
	idx := st.queuedIndex(cmd.jobID)
	if idx < 0 {
		reply(cmd, nil)
		return
	}
	st.queued = append(st.queued[:idx], st.queued[idx+1:]...)
	reply(cmd, nil)
}

func (s *Scheduler) handleReorder(st *state, cmd command) {
	idx := st.queuedIndex(cmd.jobID)
	if idx < 0 {
		reply(cmd, nil)
		return
	}
	job := st.queued[idx]
	st.queued = append(st.queued[:idx], st.queued[idx+1:]...)
	st.insertQueuedAt(cmd.position, job)
	reply(cmd, nil)
}

func (s *Scheduler) handleRemoveByInstallID(st *state, cmd command) {
	kept := st.queued[:0]
	for _, j := range st.queued {
		if j.InstallID != cmd.installID {
			kept = append(kept, j)
		}
	}
	st.queued = kept
}

func (s *Scheduler) handleJobDone(st *state, cmd command) {
	entry, ok := st.running[cmd.done.jobID]
	if !ok {
		return
	}
	delete(st.running, cmd.done.jobID)
	if entry.handle != nil {
		entry.handle.Done()
	}
	job := entry.job

	switch cmd.done.outcome {
	case model.OutcomeCompleted:
		job.Status = model.StatusCompleted
		st.pushHistory(model.ViewOf(job))
		if s.emitter != nil {
			s.emitter.Terminal(job.Kind, job.ID, job.Name, "complete")
		}
	case model.OutcomeFailed:
		job.Status = model.StatusFailed
		st.pushHistory(model.ViewOf(job))
		if s.emitter != nil {
			s.emitter.Terminal(job.Kind, job.ID, job.Name, "failed")
		}
	case model.OutcomeCancelled:
		if st.activating {
			// Preempted for a higher-priority install, not actually done:
			// it goes back to Queued and will re-run, so no terminal event.
			job.Status = model.StatusQueued
			st.insertQueuedAt(1, job)
		} else {
			delete(st.pausingInstalls, job.InstallID)
			job.Status = model.StatusPaused
			st.pausedJobs[job.InstallID] = job
			st.pausedOrder = append(st.pausedOrder, job.InstallID)
			if s.emitter != nil {
				s.emitter.Terminal(job.Kind, job.ID, job.Name, "paused")
			}
		}
	}
}

// dispatch pops Queued jobs into Running while the queue isn't paused and
// there's a free concurrency slot.
func (s *Scheduler) dispatch(ctx context.Context, st *state) {
	for !st.paused && len(st.running) < st.maxConcurrent && len(st.queued) > 0 {
		job := st.queued[0]
		st.queued = st.queued[1:]
		job.Status = model.StatusRunning

		jobCtx, cancel := context.WithCancel(ctx)
		handle, _ := s.tokens.Begin(job.InstallID)
		st.running[job.ID] = &runningEntry{job: job, cancel: cancel, handle: handle}

		// activating is cleared the moment the next job transitions to
		// Running (spec.md §4.H Activation).
		st.activating = false

		go s.runJob(jobCtx, job, handle)
	}
}

// runJob executes one job on its own goroutine, exactly as the teacher's
// queueWorker spawns goroutines per task (internal/engine/executor.go),
// then reports completion back through the command channel so state
// mutation stays single-threaded.
func (s *Scheduler) runJob(ctx context.Context, job *model.Job, handle *token.Handle) {
	outcome, err := s.runner(ctx, job, handle)
	s.send(command{kind: cmdJobDone, done: &jobDone{jobID: job.ID, outcome: outcome, err: err}})
}
