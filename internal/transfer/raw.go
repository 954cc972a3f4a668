package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Minlor/TwintailLauncher/internal/integrity"
	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/resume"
)

// RawManifestEntry is one file listed in a Kuro-style flat manifest:
// path relative to the install root, size, and expected hash.
type RawManifestEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// FetchRawManifest retrieves and parses the top-level manifest at
// req.ManifestURL. RunRaw calls it; ApplyPatch does not, and takes its
// file list from PatchSet.Raw instead.
func FetchRawManifest(ctx context.Context, env *Env, req *Request) ([]RawManifestEntry, error) {
	httpReq, err := newRequest(ctx, http.MethodGet, req.ManifestURL, env.UserAgent, env.Headers, env.Cookies)
	if err != nil {
		return nil, err
	}
	resp, err := env.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, friendlyHTTPError(resp.StatusCode)
	}

	var entries []RawManifestEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return entries, nil
}

// RunRaw implements the Raw (Kuro) transfer engine (spec.md §4.E): fetch
// the manifest, diff it against what's on disk by path+hash, fetch what's
// missing or mismatched. No post-download patch step runs afterwards; the
// run completes once every entry is on disk.
func RunRaw(ctx context.Context, env *Env, req *Request) Result {
	if err := resume.Create(req.TargetDir, resume.Downloading); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}

	entries, err := FetchRawManifest(ctx, env, req)
	if err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}

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
		env.VerifiedSet.Add(req.InstallID, e.Path)
		env.Emitter.Tick(req.Kind, model.ProgressRecord{
			JobID: req.JobID, Name: req.Name, Phase: model.PhaseDownloading,
			Progress: done, Total: total,
		})
	}

	if err := resume.Remove(req.TargetDir, resume.Downloading); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}

	env.Emitter.Tick(req.Kind, model.ProgressRecord{
		JobID: req.JobID, Name: req.Name, Phase: model.PhaseMoving,
		Progress: total, Total: total,
	})
	return Result{Outcome: model.OutcomeCompleted}
}

// DiffRawManifest returns the manifest entries whose on-disk file is
// absent or whose hash doesn't match (spec.md §4.E: "diff against
// existing install (by path+hash)").
func DiffRawManifest(env *Env, targetDir string, entries []RawManifestEntry) []RawManifestEntry {
	var missing []RawManifestEntry
	for _, e := range entries {
		path := filepath.Join(targetDir, e.Path)
		info, err := os.Stat(path)
		if err != nil || info.Size() != e.Size {
			missing = append(missing, e)
			continue
		}
		if e.Hash == "" {
			continue
		}
		hash, err := integrity.CalculateHash(path, "sha256")
		if err != nil || hash != e.Hash {
			missing = append(missing, e)
		}
	}
	return missing
}

func fetchRawFile(ctx context.Context, env *Env, req *Request, e RawManifestEntry) (int64, error) {
	fileURL := e.Path
	if req.BaseURL != "" {
		fileURL = req.BaseURL + "/" + e.Path
	}
	httpReq, err := newRequest(ctx, http.MethodGet, fileURL, env.UserAgent, env.Headers, env.Cookies)
	if err != nil {
		return 0, err
	}
	resp, err := env.Client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return 0, ErrLinkExpired
	}
	if resp.StatusCode != http.StatusOK {
		return 0, friendlyHTTPError(resp.StatusCode)
	}

	dest := filepath.Join(req.TargetDir, e.Path)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 256*1024)
	var written int64
	for {
		if err := checkCancel(ctx, req.Handle); err != nil {
			return written, ErrCancelled
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := env.Bandwidth.Wait(ctx, n); err != nil {
				return written, err
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, readErr
		}
	}
	return written, nil
}
