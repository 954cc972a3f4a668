// Package resume manages the marker directories that encode "what was in
// flight" inside an install directory (spec.md §4.G). Markers are owned by
// the filesystem: engines create/remove them, and readers (the UI, via
// GetResumeStates) infer resume state purely from what is on disk, so a
// process kill mid-run leaves a recoverable trail.
package resume

import (
	"os"
	"path/filepath"

	"github.com/Minlor/TwintailLauncher/internal/model"
)

const (
	Downloading = "downloading"
	Patching    = "patching"
	Preload     = "patching/.preload"
	Repairing   = "repairing"

	stagingDir = "downloading/staging"
)

// Create makes the named marker directory (and any parent, e.g. for the
// patching/.preload sub-marker) under installDir.
func Create(installDir, marker string) error {
	return os.MkdirAll(filepath.Join(installDir, marker), 0o755)
}

// Remove deletes the named marker directory and everything under it
// (e.g. downloading/staging).
func Remove(installDir, marker string) error {
	err := os.RemoveAll(filepath.Join(installDir, marker))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether the named marker directory is present.
func Exists(installDir, marker string) bool {
	info, err := os.Stat(filepath.Join(installDir, marker))
	return err == nil && info.IsDir()
}

// StagingDir returns the archive engine's staging directory path for an
// install, creating its parent marker if necessary is the caller's job.
func StagingDir(installDir string) string {
	return filepath.Join(installDir, stagingDir)
}

// State inspects the markers under installDir and reports the
// mutually-exclusive resume state per spec.md §4.G's table. Any
// combination not in that table is corrupted and reported as Idle; the
// caller should surface a warning in that case via the bool return.
func State(installDir string) (model.ResumeStates, corrupted bool) {
	downloading := Exists(installDir, Downloading)
	preload := Exists(installDir, Preload)
	patchingRoot := Exists(installDir, Patching)
	repairing := Exists(installDir, Repairing)

	// "patching, no .preload" vs "patching/.preload, no others" are the
	// two valid patching shapes; patchingRoot is true in both cases since
	// .preload is a subdirectory of patching.
	patchingOnly := patchingRoot && !preload
	preloadOnly := preload // implies patchingRoot is also true

	set := 0
	if downloading {
		set++
	}
	if patchingRoot {
		set++
	}
	if repairing {
		set++
	}

	switch {
	case set == 0:
		return model.ResumeStates{}, false
	case set == 1 && downloading:
		return model.ResumeStates{Downloading: true}, false
	case set == 1 && patchingOnly:
		return model.ResumeStates{Updating: true}, false
	case set == 1 && preloadOnly:
		return model.ResumeStates{Preloading: true}, false
	case set == 1 && repairing:
		return model.ResumeStates{Repairing: true}, false
	default:
		// More than one of {downloading, patching, repairing} at rest:
		// not a state spec.md §4.G's table admits.
		return model.ResumeStates{}, true
	}
}
