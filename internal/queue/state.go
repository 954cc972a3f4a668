package queue

import (
	"context"

	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/token"
)

type runningEntry struct {
	job    *model.Job
	cancel context.CancelFunc
	handle *token.Handle
}

// state is the worker goroutine's private data; nothing outside Run ever
// touches it, so it needs no locking.
type state struct {
	maxConcurrent int
	paused        bool
	autoPaused    bool
	activating    bool
	nextJobID     uint64

	queued  []*model.Job
	running map[uint64]*runningEntry

	// pausedJobs/pausedOrder together give an install-keyed map with
	// stable insertion order, needed so ActivateJob's "flush all paused
	// jobs back into the queue, preserving their order" is well-defined
	// (plain map iteration order would not be).
	pausedJobs      map[string]*model.Job
	pausedOrder     []string
	pausingInstalls map[string]bool

	// history is newest-first; index len-1 is evicted first (FIFO from
	// the tail, spec.md §4.H).
	history []model.View
}

func newState(maxConcurrent int) *state {
	return &state{
		maxConcurrent:   maxConcurrent,
		running:         make(map[uint64]*runningEntry),
		pausedJobs:      make(map[string]*model.Job),
		pausingInstalls: make(map[string]bool),
	}
}

func (st *state) hasAnyEntry(installID string) bool {
	for _, j := range st.queued {
		if j.InstallID == installID {
			return true
		}
	}
	for _, e := range st.running {
		if e.job.InstallID == installID {
			return true
		}
	}
	_, paused := st.pausedJobs[installID]
	return paused
}

func (st *state) queuedIndex(jobID uint64) int {
	for i, j := range st.queued {
		if j.ID == jobID {
			return i
		}
	}
	return -1
}

func (st *state) removeFromPaused(installID string) {
	delete(st.pausedJobs, installID)
	for i, id := range st.pausedOrder {
		if id == installID {
			st.pausedOrder = append(st.pausedOrder[:i], st.pausedOrder[i+1:]...)
			break
		}
	}
}

func (st *state) pushHistory(v model.View) {
	st.history = append([]model.View{v}, st.history...)
	if len(st.history) > historyCap {
		st.history = st.history[:historyCap]
	}
}

// insertQueuedAt inserts job at index idx, clamped into [0, len(queued)].
func (st *state) insertQueuedAt(idx int, job *model.Job) {
	if idx < 0 {
		idx = 0
	}
	if idx > len(st.queued) {
		idx = len(st.queued)
	}
	st.queued = append(st.queued, nil)
	copy(st.queued[idx+1:], st.queued[idx:])
	st.queued[idx] = job
}

func (st *state) snapshot() model.QueueState {
	running := make([]model.View, 0, len(st.running))
	for _, e := range st.running {
		running = append(running, model.ViewOf(e.job))
	}
	queued := make([]model.View, 0, len(st.queued))
	for _, j := range st.queued {
		queued = append(queued, model.ViewOf(j))
	}
	paused := make([]model.View, 0, len(st.pausedOrder))
	for _, id := range st.pausedOrder {
		paused = append(paused, model.ViewOf(st.pausedJobs[id]))
	}
	pausing := make([]string, 0, len(st.pausingInstalls))
	for id := range st.pausingInstalls {
		pausing = append(pausing, id)
	}
	completed := make([]model.View, len(st.history))
	copy(completed, st.history)

	return model.QueueState{
		MaxConcurrent:   st.maxConcurrent,
		Paused:          st.paused,
		AutoPaused:      st.autoPaused,
		Running:         running,
		Queued:          queued,
		Completed:       completed,
		PausedJobs:      paused,
		PausingInstalls: pausing,
	}
}
