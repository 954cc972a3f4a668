package queue

import (
	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/resume"
)

// GetResumeStates inspects every known install's marker directories and
// reports its (mutually exclusive) resume state (spec.md §4.G). It is a
// pure filesystem read with no queue-state dependency, so unlike the
// other Scheduler methods it does not go through the command channel.
func (s *Scheduler) GetResumeStates(installDirs map[string]string) map[string]model.ResumeStates {
	out := make(map[string]model.ResumeStates, len(installDirs))
	for installID, dir := range installDirs {
		states, corrupted := resume.State(dir)
		if corrupted {
			// Reported as Idle with the caller expected to warn the user
			// (spec.md §4.G); the warning itself is a UI/logging concern.
			out[installID] = model.ResumeStates{}
			continue
		}
		out[installID] = states
	}
	return out
}
