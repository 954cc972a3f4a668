package transfer

import (
	"context"
	"fmt"

	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/resume"
	"github.com/shirou/gopsutil/v3/disk"
)

// PatchSet describes the diff to apply for an update (spec.md §4.F):
// chunk-granular for Sophon titles, file-granular for Raw/Kuro titles.
// Exactly one of Sophon/Raw should be populated, matching the install's
// transfer mode.
type PatchSet struct {
	Sophon []SophonManifest
	Raw    []RawManifestEntry

	// DeclaredSize is the diff's declared decompressed size, checked
	// against free disk space before any mutation (spec.md §4.F).
	DeclaredSize int64

	// Preload marks this apply as a predownload: the patch is staged
	// under patching/.preload but not switched live.
	Preload bool
}

// ApplyPatch runs the Patch Engine (spec.md §4.F): preflight disk-space
// check, create the patching marker (plus .preload sub-marker when this
// is a predownload), drive the underlying engine, then clear the
// marker(s) only on success.
func ApplyPatch(ctx context.Context, env *Env, req *Request, patch PatchSet) Result {
	if err := checkDiskSpace(env, req.TargetDir, patch.DeclaredSize); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}

	if err := resume.Create(req.TargetDir, resume.Patching); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}
	if patch.Preload {
		if err := resume.Create(req.TargetDir, resume.Preload); err != nil {
			return Result{Outcome: model.OutcomeFailed, Err: err}
		}
	}

	var res Result
	switch {
	case len(patch.Sophon) > 0:
		res = RunSophon(ctx, env, req, patch.Sophon)
	case len(patch.Raw) > 0:
		res = runRawPatch(ctx, env, req, patch.Raw)
	default:
		res = Result{Outcome: model.OutcomeCompleted}
	}

	if res.Outcome != model.OutcomeCompleted {
		// Marker(s) stay in place: a failed or cancelled patch must be
		// resumable/repairable, not silently forgotten.
		return res
	}

	if patch.Preload {
		// Staged but not switched live: only the inner .preload marker
		// clears here. The outer `patching` marker is removed at the
		// subsequent non-preload update that actually switches it live.
		if err := resume.Remove(req.TargetDir, resume.Preload); err != nil {
			return Result{Outcome: model.OutcomeFailed, Err: err}
		}
		return Result{Outcome: model.OutcomeCompleted}
	}

	if err := resume.Remove(req.TargetDir, resume.Patching); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}
	return Result{Outcome: model.OutcomeCompleted}
}

func runRawPatch(ctx context.Context, env *Env, req *Request, entries []RawManifestEntry) Result {
	missing := DiffRawManifest(env, req.TargetDir, entries)
	var total, done int64
	for _, e := range missing {
		total += e.Size
	}
	for _, e := range missing {
		if err := checkCancel(ctx, req.Handle); err != nil {
			return Result{Outcome: model.OutcomeCancelled}
		}
		n, err := fetchRawFile(ctx, env, req, e)
		if err != nil {
			if err == ErrCancelled {
				return Result{Outcome: model.OutcomeCancelled}
			}
			return Result{Outcome: model.OutcomeFailed, Err: err}
		}
		done += n
		env.Emitter.Tick(req.Kind, model.ProgressRecord{
			JobID: req.JobID, Name: req.Name, Phase: model.PhaseDownloading,
			Progress: done, Total: total,
		})
	}
	return Result{Outcome: model.OutcomeCompleted}
}

// patchSpaceBuffer mirrors the Allocator's own 100MB safety margin
// (internal/filesystem.Allocator.checkDiskSpace) so the Patch Engine's
// preflight and the Allocator's own check agree on what "enough" means.
const patchSpaceBuffer = 100 * 1024 * 1024

func checkDiskSpace(env *Env, targetDir string, declaredSize int64) error {
	if declaredSize <= 0 {
		return nil
	}
	usage, err := disk.Usage(targetDir)
	if err != nil {
		return fmt.Errorf("check disk space: %w", err)
	}
	if int64(usage.Free) < declaredSize+patchSpaceBuffer {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrInsufficientDisk, declaredSize, usage.Free)
	}
	return nil
}
