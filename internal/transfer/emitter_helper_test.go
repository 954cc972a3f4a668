package transfer

import (
	"time"

	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/progress"
)

// recordingSink lets a test observe individual Progress calls without
// pulling in a fake UI implementation.
type recordingSink struct {
	onProgress func(model.ProgressRecord)
}

func (r *recordingSink) Progress(_ string, rec model.ProgressRecord) {
	if r.onProgress != nil {
		r.onProgress(rec)
	}
}
func (r *recordingSink) JobEvent(string, uint64, string) {}
func (r *recordingSink) QueueState(model.QueueState)     {}
func (r *recordingSink) ConnectionStatus(bool)           {}

// newTestEmitter builds an Emitter with effectively no coalescing so
// every Tick is observed.
func newTestEmitter(sink progress.Sink) *progress.Emitter {
	return progress.NewEmitter(sink, time.Nanosecond)
}
