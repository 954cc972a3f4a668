// Package progress implements the Progress/Phase Emitter (spec.md §4.B).
// It replaces the teacher's ambient `runtime.EventsEmit` calls scattered
// through the download engine with an explicit, injected Sink — the
// "ambient UI emitter" redesign called for in spec.md §9 — so the
// scheduler and engines stay testable without a UI host.
package progress

import (
	"sync"
	"time"

	"github.com/Minlor/TwintailLauncher/internal/model"
)

// Sink receives published progress ticks and terminal job events. UI
// shells implement this (see internal/uiemit for the Wails-backed one);
// tests can use a trivial in-memory Sink.
type Sink interface {
	Progress(eventName string, rec model.ProgressRecord)
	JobEvent(eventName string, jobID uint64, name string)
	QueueState(state model.QueueState)
	ConnectionStatus(online bool)
}

// EventNames per job kind, matching spec.md §6's UI event catalogue.
var eventNames = map[model.JobKind]string{
	model.JobDownload: "download",
	model.JobUpdate:   "update",
	model.JobPreload:  "preload",
	model.JobRepair:   "repair",
}

func eventPrefix(kind model.JobKind) string {
	if name, ok := eventNames[kind]; ok {
		return name
	}
	return string(kind)
}

// Emitter coalesces progress ticks to a bounded rate (spec.md §4.B
// recommends ≤10Hz) before handing the record to the Sink. It does not
// check the (phase, progress) ordering of the records it passes on; that
// ordering is up to the engines that call Tick.
type Emitter struct {
	sink     Sink
	minGap   time.Duration
	mu       sync.Mutex
	lastSent map[uint64]time.Time
	lastRec  map[uint64]model.ProgressRecord
}

// NewEmitter builds an Emitter publishing through sink, coalescing to at
// most one tick per minGap per job (pass 100*time.Millisecond for the
// recommended 10Hz cap).
func NewEmitter(sink Sink, minGap time.Duration) *Emitter {
	return &Emitter{
		sink:     sink,
		minGap:   minGap,
		lastSent: make(map[uint64]time.Time),
		lastRec:  make(map[uint64]model.ProgressRecord),
	}
}

// Tick publishes a progress record for the given job kind, dropping it if
// it arrived before minGap has elapsed since the last tick for that job —
// UNLESS its phase differs from the last published tick's phase (in
// either direction) or this is the job's first tick, in which case it
// always goes through so the UI never misses a phase change.
func (e *Emitter) Tick(kind model.JobKind, rec model.ProgressRecord) {
	e.mu.Lock()
	last, seen := e.lastRec[rec.JobID]
	lastTime := e.lastSent[rec.JobID]
	phaseChanged := !seen || rec.Phase != last.Phase
	due := !seen || time.Since(lastTime) >= e.minGap
	if !due && !phaseChanged {
		e.mu.Unlock()
		return
	}
	e.lastSent[rec.JobID] = time.Now()
	e.lastRec[rec.JobID] = rec
	e.mu.Unlock()

	e.sink.Progress(eventPrefix(kind)+"_progress", rec)
}

// Terminal publishes a <kind>_<eventSuffix> event (the scheduler uses the
// suffixes complete, failed and paused) and
// drops the job's tick-rate bookkeeping.
func (e *Emitter) Terminal(kind model.JobKind, jobID uint64, name string, eventSuffix string) {
	e.mu.Lock()
	delete(e.lastSent, jobID)
	delete(e.lastRec, jobID)
	e.mu.Unlock()

	e.sink.JobEvent(eventPrefix(kind)+"_"+eventSuffix, jobID, name)
}

// QueueState publishes a full queue snapshot (spec.md §4.H: after every
// command and every job-termination notification).
func (e *Emitter) QueueState(state model.QueueState) {
	e.sink.QueueState(state)
}

// ConnectionStatus publishes the connectivity monitor's online/offline
// transition.
func (e *Emitter) ConnectionStatus(online bool) {
	e.sink.ConnectionStatus(online)
}
