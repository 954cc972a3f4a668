package queue

import "github.com/Minlor/TwintailLauncher/internal/model"

type commandKind int

const (
	cmdEnqueue commandKind = iota
	cmdPauseInstall
	cmdActivateJob
	cmdResumeJob
	cmdSetPaused
	cmdAutoPause
	cmdAutoResume
	cmdMoveUp
	cmdMoveDown
	cmdRemove
	cmdReorder
	cmdRemoveByInstallID
	cmdGetState
	cmdClearCompleted
	cmdJobDone
)

// command is the single message type carried over Scheduler.cmdCh - both
// user-issued commands and internal job-completion notifications, so
// every state mutation is serialized through one worker loop without a
// mutex.
type command struct {
	kind      commandKind
	job       *model.Job
	jobID     uint64
	installID string
	position  int
	paused    bool
	done      *jobDone
	reply     chan any // nil for fire-and-forget commands
}

type jobDone struct {
	jobID   uint64
	outcome model.Outcome
	err     error
}

type enqueueResult struct {
	id  uint64
	err error
}
