package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/progress"
	"github.com/Minlor/TwintailLauncher/internal/resume"
	"github.com/Minlor/TwintailLauncher/internal/token"
)

type noopSink struct{}

func (noopSink) Progress(string, model.ProgressRecord) {}
func (noopSink) JobEvent(string, uint64, string)       {}
func (noopSink) QueueState(model.QueueState)           {}
func (noopSink) ConnectionStatus(bool)                 {}

// recordingSink captures JobEvent calls so tests can assert the
// scheduler actually reaches Emitter.Terminal, not just that the queue
// state mutated.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Progress(string, model.ProgressRecord) {}
func (s *recordingSink) JobEvent(event string, jobID uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}
func (s *recordingSink) QueueState(model.QueueState) {}
func (s *recordingSink) ConnectionStatus(bool)       {}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

// blockingRunner runs every job until its context is cancelled, then
// reports Cancelled; it never completes on its own. Used to exercise
// PauseInstall/ActivateJob preemption deterministically.
func blockingRunner(t *testing.T) (Runner, func(installID string)) {
	started := make(chan string, 64)
	run := func(ctx context.Context, job *model.Job, handle *token.Handle) (model.Outcome, error) {
		started <- job.InstallID
		<-ctx.Done()
		return model.OutcomeCancelled, ctx.Err()
	}
	waitStarted := func(installID string) {
		for {
			select {
			case id := <-started:
				if id == installID {
					return
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out waiting for install %s to start", installID)
			}
		}
	}
	return run, waitStarted
}

// immediateRunner completes every job with the given outcome right away.
func immediateRunner(outcome model.Outcome) Runner {
	return func(ctx context.Context, job *model.Job, handle *token.Handle) (model.Outcome, error) {
		return outcome, nil
	}
}

func newTestScheduler(t *testing.T, runner Runner, maxConcurrent int) (*Scheduler, context.CancelFunc) {
	t.Helper()
	sched, cancel, _ := newTestSchedulerWithSink(t, runner, maxConcurrent, noopSink{})
	return sched, cancel
}

func newTestSchedulerWithSink(t *testing.T, runner Runner, maxConcurrent int, sink progress.Sink) (*Scheduler, context.CancelFunc, progress.Sink) {
	t.Helper()
	tokens := token.NewRegistry()
	emitter := progress.NewEmitter(sink, 0)
	sched := NewScheduler(runner, tokens, emitter, maxConcurrent)
	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	return sched, cancel, sink
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEnqueueRejectsDuplicateInstall(t *testing.T) {
	runner, _ := blockingRunner(t)
	sched, cancel := newTestScheduler(t, runner, 1)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)

	_, err = sched.EnqueueJob(model.JobUpdate, "install-1", "Game A", nil)
	assert.ErrorIs(t, err, ErrDuplicateInstall)
}

func TestDispatchRespectsMaxConcurrent(t *testing.T) {
	runner, waitStarted := blockingRunner(t)
	sched, cancel := newTestScheduler(t, runner, 1)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)
	_, err = sched.EnqueueJob(model.JobDownload, "install-2", "Game B", nil)
	require.NoError(t, err)

	waitStarted("install-1")

	state := sched.GetQueueState()
	assert.Len(t, state.Running, 1)
	assert.Len(t, state.Queued, 1)
	assert.Equal(t, "install-1", state.Running[0].InstallID)
}

func TestCompletedJobEntersHistory(t *testing.T) {
	sink := &recordingSink{}
	sched, cancel, _ := newTestSchedulerWithSink(t, immediateRunner(model.OutcomeCompleted), 2, sink)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)

	waitForCondition(t, func() bool {
		return len(sched.GetQueueState().Completed) == 1
	})
	state := sched.GetQueueState()
	assert.Equal(t, model.StatusCompleted, state.Completed[0].Status)
	assert.Empty(t, state.Running)
	assert.Empty(t, state.Queued)

	waitForCondition(t, func() bool {
		return len(sink.snapshot()) > 0
	})
	assert.Contains(t, sink.snapshot(), "download_complete")
}

func TestFailedJobEntersHistory(t *testing.T) {
	sink := &recordingSink{}
	sched, cancel, _ := newTestSchedulerWithSink(t, immediateRunner(model.OutcomeFailed), 2, sink)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)

	waitForCondition(t, func() bool {
		return len(sched.GetQueueState().Completed) == 1
	})
	assert.Equal(t, model.StatusFailed, sched.GetQueueState().Completed[0].Status)

	waitForCondition(t, func() bool {
		return len(sink.snapshot()) > 0
	})
	assert.Contains(t, sink.snapshot(), "download_failed")
}

func TestHistoryIsBoundedAndFIFOFromTail(t *testing.T) {
	sched, cancel := newTestScheduler(t, immediateRunner(model.OutcomeCompleted), 4)
	defer cancel()

	for i := 0; i < historyCap+5; i++ {
		_, err := sched.EnqueueJob(model.JobDownload, installIDFor(i), "Game", nil)
		require.NoError(t, err)
		waitForCondition(t, func() bool {
			return len(sched.GetQueueState().Completed) == minInt(i+1, historyCap)
		})
	}

	state := sched.GetQueueState()
	assert.Len(t, state.Completed, historyCap)
	// newest-first: the very last install enqueued must be at index 0.
	assert.Equal(t, installIDFor(historyCap+4), state.Completed[0].InstallID)
}

func installIDFor(i int) string {
	return "install-" + string(rune('A'+i%26)) + string(rune('0'+i/26))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func TestPauseInstallCancelsRunningJobIntoPausedNotHistory(t *testing.T) {
	runner, waitStarted := blockingRunner(t)
	sink := &recordingSink{}
	sched, cancel, _ := newTestSchedulerWithSink(t, runner, 1, sink)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)
	waitStarted("install-1")

	sched.PauseInstall("install-1")

	waitForCondition(t, func() bool {
		return len(sched.GetQueueState().PausedJobs) == 1
	})
	state := sched.GetQueueState()
	assert.Empty(t, state.Completed)
	assert.Empty(t, state.Running)
	require.Len(t, state.PausedJobs, 1)
	assert.Equal(t, model.StatusPaused, state.PausedJobs[0].Status)
	assert.Equal(t, "install-1", state.PausedJobs[0].InstallID)

	waitForCondition(t, func() bool {
		return len(sink.snapshot()) > 0
	})
	assert.Contains(t, sink.snapshot(), "download_paused")
}

func TestPauseInstallParksMerelyQueuedJobDirectly(t *testing.T) {
	runner, waitStarted := blockingRunner(t)
	sched, cancel := newTestScheduler(t, runner, 1)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)
	waitStarted("install-1")

	_, err = sched.EnqueueJob(model.JobDownload, "install-2", "Game B", nil)
	require.NoError(t, err)

	sched.PauseInstall("install-2")

	waitForCondition(t, func() bool {
		return len(sched.GetQueueState().PausedJobs) == 1
	})
	state := sched.GetQueueState()
	assert.Empty(t, state.Queued)
	require.Len(t, state.PausedJobs, 1)
	assert.Equal(t, "install-2", state.PausedJobs[0].InstallID)
}

func TestResumeJobMovesPausedJobToQueueFront(t *testing.T) {
	runner, waitStarted := blockingRunner(t)
	sched, cancel := newTestScheduler(t, runner, 1)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)
	waitStarted("install-1")

	_, err = sched.EnqueueJob(model.JobDownload, "install-2", "Game B", nil)
	require.NoError(t, err)
	_, err = sched.EnqueueJob(model.JobDownload, "install-3", "Game C", nil)
	require.NoError(t, err)

	sched.PauseInstall("install-2")
	waitForCondition(t, func() bool {
		return len(sched.GetQueueState().PausedJobs) == 1
	})

	require.NoError(t, sched.ResumeJob("install-2"))

	state := sched.GetQueueState()
	require.Len(t, state.Queued, 2)
	assert.Equal(t, "install-2", state.Queued[0].InstallID)
	assert.Equal(t, "install-3", state.Queued[1].InstallID)
	assert.Empty(t, state.PausedJobs)
}

func TestResumeJobOnNonPausedInstallReturnsErrNotPaused(t *testing.T) {
	sched, cancel := newTestScheduler(t, immediateRunner(model.OutcomeCompleted), 1)
	defer cancel()

	err := sched.ResumeJob("does-not-exist")
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestActivateJobPreemptsRunningInstallAndFlushesPaused(t *testing.T) {
	runner, waitStarted := blockingRunner(t)
	sched, cancel := newTestScheduler(t, runner, 1)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)
	waitStarted("install-1")

	_, err = sched.EnqueueJob(model.JobDownload, "install-2", "Game B", nil)
	require.NoError(t, err)

	sched.PauseInstall("install-2")
	waitForCondition(t, func() bool {
		return len(sched.GetQueueState().PausedJobs) == 1
	})

	targetID, err := sched.EnqueueJob(model.JobDownload, "install-3", "Game C", nil)
	require.NoError(t, err)

	require.NoError(t, sched.ActivateJob(targetID))

	// install-1's running job is cancelled by activation; it should land
	// back in the queue at index 1 (cancelled-during-activation path),
	// never in history, and install-2's paused job is flushed to the tail.
	waitForCondition(t, func() bool {
		st := sched.GetQueueState()
		return len(st.Running) == 1 && st.Running[0].InstallID == "install-3"
	})

	state := sched.GetQueueState()
	assert.Empty(t, state.Completed)
	assert.Empty(t, state.PausedJobs)

	var queuedInstalls []string
	for _, j := range state.Queued {
		queuedInstalls = append(queuedInstalls, j.InstallID)
	}
	assert.Contains(t, queuedInstalls, "install-1")
	assert.Contains(t, queuedInstalls, "install-2")
}

func TestActivateJobOnUnknownIDReturnsErrJobNotFound(t *testing.T) {
	sched, cancel := newTestScheduler(t, immediateRunner(model.OutcomeCompleted), 1)
	defer cancel()

	err := sched.ActivateJob(9999)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestOrderingOpsAreNoopsOutsideQueued(t *testing.T) {
	runner, waitStarted := blockingRunner(t)
	sched, cancel := newTestScheduler(t, runner, 1)
	defer cancel()

	id1, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)
	waitStarted("install-1")

	// install-1 is now Running: MoveUp/MoveDown/Remove/Reorder must be
	// no-ops (return nil, state unchanged) rather than erroring.
	assert.NoError(t, sched.MoveUp(id1))
	assert.NoError(t, sched.MoveDown(id1))
	assert.NoError(t, sched.Reorder(id1, 0))
	assert.NoError(t, sched.Remove(id1))

	state := sched.GetQueueState()
	require.Len(t, state.Running, 1)
	assert.Equal(t, "install-1", state.Running[0].InstallID)
}

func TestMoveUpMoveDownReorderOnQueuedJobs(t *testing.T) {
	runner, waitStarted := blockingRunner(t)
	sched, cancel := newTestScheduler(t, runner, 1)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)
	waitStarted("install-1")

	idB, err := sched.EnqueueJob(model.JobDownload, "install-2", "Game B", nil)
	require.NoError(t, err)
	idC, err := sched.EnqueueJob(model.JobDownload, "install-3", "Game C", nil)
	require.NoError(t, err)
	_ = idC

	require.NoError(t, sched.MoveDown(idB))
	state := sched.GetQueueState()
	require.Len(t, state.Queued, 2)
	assert.Equal(t, "install-3", state.Queued[0].InstallID)
	assert.Equal(t, "install-2", state.Queued[1].InstallID)

	require.NoError(t, sched.Reorder(idB, 0))
	state = sched.GetQueueState()
	assert.Equal(t, "install-2", state.Queued[0].InstallID)
}

func TestRemoveByInstallIDRemovesQueuedEntriesOnly(t *testing.T) {
	runner, waitStarted := blockingRunner(t)
	sched, cancel := newTestScheduler(t, runner, 1)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)
	waitStarted("install-1")

	_, err = sched.EnqueueJob(model.JobDownload, "install-2", "Game B", nil)
	require.NoError(t, err)

	sched.RemoveByInstallID("install-2")

	waitForCondition(t, func() bool {
		return len(sched.GetQueueState().Queued) == 0
	})

	// install-1 is still Running: RemoveByInstallID must not touch it.
	state := sched.GetQueueState()
	require.Len(t, state.Running, 1)
	assert.Equal(t, "install-1", state.Running[0].InstallID)
}

func TestSetQueuePausedHaltsDispatchWithoutTouchingRunning(t *testing.T) {
	runner, waitStarted := blockingRunner(t)
	sched, cancel := newTestScheduler(t, runner, 1)
	defer cancel()

	sched.SetQueuePaused(true)

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)

	// give the worker a moment; nothing should dispatch while paused.
	time.Sleep(50 * time.Millisecond)
	state := sched.GetQueueState()
	assert.True(t, state.Paused)
	assert.Empty(t, state.Running)
	assert.Len(t, state.Queued, 1)

	sched.SetQueuePaused(false)
	waitStarted("install-1")
}

func TestAutoPauseAndAutoResume(t *testing.T) {
	sched, cancel := newTestScheduler(t, immediateRunner(model.OutcomeCompleted), 1)
	defer cancel()

	sched.AutoPause()
	waitForCondition(t, func() bool {
		st := sched.GetQueueState()
		return st.Paused && st.AutoPaused
	})

	// AutoResume after an AutoPause clears both paused and auto_paused.
	sched.AutoResume()
	waitForCondition(t, func() bool {
		st := sched.GetQueueState()
		return !st.Paused && !st.AutoPaused
	})
}

func TestAutoResumeIsNoopWithoutAutoPause(t *testing.T) {
	sched, cancel := newTestScheduler(t, immediateRunner(model.OutcomeCompleted), 1)
	defer cancel()

	sched.SetQueuePaused(true)
	waitForCondition(t, func() bool {
		return sched.GetQueueState().Paused
	})

	sched.AutoResume()
	time.Sleep(30 * time.Millisecond)
	assert.True(t, sched.GetQueueState().Paused)
}

func TestClearCompletedEmptiesHistory(t *testing.T) {
	sched, cancel := newTestScheduler(t, immediateRunner(model.OutcomeCompleted), 1)
	defer cancel()

	_, err := sched.EnqueueJob(model.JobDownload, "install-1", "Game A", nil)
	require.NoError(t, err)
	waitForCondition(t, func() bool {
		return len(sched.GetQueueState().Completed) == 1
	})

	sched.ClearCompleted()
	waitForCondition(t, func() bool {
		return len(sched.GetQueueState().Completed) == 0
	})
}

func TestGetQueueStateSnapshotShape(t *testing.T) {
	sched, cancel := newTestScheduler(t, immediateRunner(model.OutcomeCompleted), 3)
	defer cancel()

	state := sched.GetQueueState()
	assert.Equal(t, 3, state.MaxConcurrent)
	assert.False(t, state.Paused)
	assert.False(t, state.AutoPaused)
	assert.NotNil(t, state.Running)
	assert.NotNil(t, state.Queued)
}

func TestGetResumeStatesReflectsMarkerDirectories(t *testing.T) {
	sched, cancel := newTestScheduler(t, immediateRunner(model.OutcomeCompleted), 1)
	defer cancel()

	dirA := t.TempDir()
	require.NoError(t, resume.Create(dirA, resume.Downloading))

	dirB := t.TempDir()
	require.NoError(t, resume.Create(dirB, resume.Repairing))

	dirC := t.TempDir()

	states := sched.GetResumeStates(map[string]string{
		"install-a": dirA,
		"install-b": dirB,
		"install-c": dirC,
	})

	require.Contains(t, states, "install-a")
	assert.True(t, states["install-a"].Downloading)

	require.Contains(t, states, "install-b")
	assert.True(t, states["install-b"].Repairing)

	require.Contains(t, states, "install-c")
	assert.Equal(t, model.ResumeStates{}, states["install-c"])
}

func TestGetResumeStatesReportsCorruptedCombinationAsIdle(t *testing.T) {
	sched, cancel := newTestScheduler(t, immediateRunner(model.OutcomeCompleted), 1)
	defer cancel()

	dir := t.TempDir()
	require.NoError(t, resume.Create(dir, resume.Downloading))
	require.NoError(t, resume.Create(dir, resume.Repairing))

	states := sched.GetResumeStates(map[string]string{"install-x": dir})
	assert.Equal(t, model.ResumeStates{}, states["install-x"])
}

// TestConcurrentEnqueueIsSerializedSafely sanity checks that hammering Enqueue
// from many goroutines never races the single worker loop (it shouldn't,
// since every mutation funnels through one channel).
func TestConcurrentEnqueueIsSerializedSafely(t *testing.T) {
	sched, cancel := newTestScheduler(t, immediateRunner(model.OutcomeCompleted), 4)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = sched.EnqueueJob(model.JobDownload, installIDFor(i+100), "Game", nil)
		}(i)
	}
	wg.Wait()

	waitForCondition(t, func() bool {
		return len(sched.GetQueueState().Completed) == 20
	})
}
