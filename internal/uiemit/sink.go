// Package uiemit provides the Wails-backed progress.Sink a real launcher
// shell plugs into the core (the redesigned explicit-injection emitter
// called for in spec.md §9, replacing the teacher's ambient
// runtime.EventsEmit calls scattered through internal/engine). Grounded
// on the teacher's WailsHandler (internal/logger): same
// "hold a context, call runtime.EventsEmit, no-op until SetContext" shape,
// generalized from log lines to progress.Sink's four event kinds.
package uiemit

import (
	"context"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/Minlor/TwintailLauncher/internal/model"
)

// WailsSink emits every progress.Sink event as a Wails frontend event. It
// is a no-op until SetContext is called with the app's Wails context,
// exactly like the teacher's WailsHandler.
type WailsSink struct {
	mu  sync.Mutex
	ctx context.Context
}

// NewWailsSink builds an inert sink; call SetContext once the Wails app
// context is available.
func NewWailsSink() *WailsSink {
	return &WailsSink{}
}

// SetContext installs the Wails app context events are emitted through.
func (s *WailsSink) SetContext(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
}

func (s *WailsSink) appCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *WailsSink) Progress(eventName string, rec model.ProgressRecord) {
	ctx := s.appCtx()
	if ctx == nil {
		return
	}
	runtime.EventsEmit(ctx, eventName, rec)
}

func (s *WailsSink) JobEvent(eventName string, jobID uint64, name string) {
	ctx := s.appCtx()
	if ctx == nil {
		return
	}
	runtime.EventsEmit(ctx, eventName, map[string]any{"job_id": jobID, "name": name})
}

func (s *WailsSink) QueueState(state model.QueueState) {
	ctx := s.appCtx()
	if ctx == nil {
		return
	}
	runtime.EventsEmit(ctx, "download_queue_state", state)
}

func (s *WailsSink) ConnectionStatus(online bool) {
	ctx := s.appCtx()
	if ctx == nil {
		return
	}
	status := "offline"
	if online {
		status = "online"
	}
	runtime.EventsEmit(ctx, "connection_status", status)
}
