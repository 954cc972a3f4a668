package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Minlor/TwintailLauncher/internal/bandwidth"
	"github.com/Minlor/TwintailLauncher/internal/congestion"
	"github.com/Minlor/TwintailLauncher/internal/filesystem"
	"github.com/Minlor/TwintailLauncher/internal/integrity"
	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/progress"
	"github.com/Minlor/TwintailLauncher/internal/token"
	"github.com/Minlor/TwintailLauncher/internal/transfer"
)

// newRunner builds the queue.Runner every job activation invokes. env's
// collaborators (bandwidth, congestion, verified set, emitter) are shared
// singletons across every concurrent job, matching the teacher's single
// TachyonEngine owning one set of these across all active downloads.
func newRunner(logger *slog.Logger, env *transfer.Env) func(ctx context.Context, job *model.Job, handle *token.Handle) (model.Outcome, error) {
	return func(ctx context.Context, job *model.Job, handle *token.Handle) (model.Outcome, error) {
		payload, ok := job.Payload.(JobPayload)
		if !ok {
			return model.OutcomeFailed, fmt.Errorf("job %d: payload is %T, want JobPayload", job.ID, job.Payload)
		}

		req := &transfer.Request{
			InstallID:   job.InstallID,
			JobID:       job.ID,
			Kind:        job.Kind,
			Name:        job.Name,
			TargetDir:   payload.TargetDir,
			SegmentURLs: payload.SegmentURLs,
			ManifestURL: payload.ManifestURL,
			BaseURL:     payload.BaseURL,
			SkipHash:    payload.SkipHash,
			Handle:      handle,
		}

		runEnv := *env
		runEnv.Headers = payload.Headers
		runEnv.Cookies = payload.Cookies
		if payload.UserAgent != "" {
			runEnv.UserAgent = payload.UserAgent
		}

		logger.Info("job starting", "job_id", job.ID, "install_id", job.InstallID, "engine", payload.Engine)

		var result transfer.Result
		switch payload.Engine {
		case EngineArchive:
			result = transfer.RunArchive(ctx, &runEnv, req)
		case EngineSophon:
			result = transfer.RunSophon(ctx, &runEnv, req, payload.SophonManifests)
		case EngineRaw:
			result = transfer.RunRaw(ctx, &runEnv, req)
		case EnginePatch:
			if payload.Patch == nil {
				return model.OutcomeFailed, fmt.Errorf("job %d: patch engine requires a PatchSet", job.ID)
			}
			result = transfer.ApplyPatch(ctx, &runEnv, req, *payload.Patch)
		default:
			return model.OutcomeFailed, fmt.Errorf("job %d: unknown engine %q", job.ID, payload.Engine)
		}

		// The verified set survives a cancelled (paused or preempted) run
		// only; a finished run drops it.
		if result.Outcome != model.OutcomeCancelled && env.VerifiedSet != nil {
			env.VerifiedSet.Clear(job.InstallID)
		}

		if result.Err != nil {
			logger.Warn("job finished with error", "job_id", job.ID, "outcome", result.Outcome, "error", result.Err)
		} else {
			logger.Info("job finished", "job_id", job.ID, "outcome", result.Outcome)
		}
		return result.Outcome, result.Err
	}
}

// buildEnv assembles the shared collaborator set once at startup.
func buildEnv(client *http.Client, bw *bandwidth.Manager, cc *congestion.CongestionController, alloc *filesystem.Allocator, verifier *integrity.FileVerifier, emitter *progress.Emitter, verified *token.VerifiedSets, userAgent string) *transfer.Env {
	return &transfer.Env{
		Client:      client,
		Bandwidth:   bw,
		Congestion:  cc,
		Allocator:   alloc,
		Verifier:    verifier,
		Emitter:     emitter,
		VerifiedSet: verified,
		UserAgent:   userAgent,
	}
}
