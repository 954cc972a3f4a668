package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/resume"
)

// ExtractorPath is the external archive tool used to unpack a staged
// download (spec.md §4.C step 4). The launcher ships a 7-zip binary
// alongside itself, mirroring the original implementation's bundled
// `7zr`/`7zr.exe`; invoking it via os/exec is the only option here since
// no pure-Go library in the pack understands every archive format the
// game CDNs actually serve (7z, multi-volume zip).
var ExtractorPath = "7zr"

// RunArchive implements the Archive transfer engine (spec.md §4.C):
// download ordered segments into a staging directory, reassemble a
// split archive if the head segment is a ".001" part, then extract into
// the target directory.
func RunArchive(ctx context.Context, env *Env, req *Request) Result {
	if err := resume.Create(req.TargetDir, resume.Downloading); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: fmt.Errorf("create downloading marker: %w", err)}
	}

	staging := resume.StagingDir(req.TargetDir)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}

	var total int64
	sizes := make([]int64, len(req.SegmentURLs))
	for i, u := range req.SegmentURLs {
		probe, err := probeURL(ctx, env.Client, u, env.UserAgent, env.Headers, env.Cookies)
		if err != nil {
			return Result{Outcome: model.OutcomeFailed, Err: err}
		}
		sizes[i] = probe.Size
		total += probe.Size
	}

	var downloaded int64
	segmentPaths := make([]string, len(req.SegmentURLs))
	for i, u := range req.SegmentURLs {
		if err := checkCancel(ctx, req.Handle); err != nil {
			return Result{Outcome: model.OutcomeCancelled}
		}

		name := segmentFilename(u)
		dest := filepath.Join(staging, name)
		segmentPaths[i] = dest

		cacheKey := req.InstallID + ":" + name
		if fileMatchesSize(dest, sizes[i]) && env.VerifiedSet.Contains(req.InstallID, cacheKey) {
			downloaded += sizes[i]
			emitArchiveTick(env, req, model.PhaseDownloading, downloaded, total)
			continue
		}

		n, err := downloadSegment(ctx, env, req, u, dest)
		if err != nil {
			if err == ErrCancelled {
				return Result{Outcome: model.OutcomeCancelled}
			}
			return Result{Outcome: model.OutcomeFailed, Err: err}
		}
		downloaded += n
		env.VerifiedSet.Add(req.InstallID, cacheKey)
		emitArchiveTick(env, req, model.PhaseDownloading, downloaded, total)
	}

	if err := checkCancel(ctx, req.Handle); err != nil {
		return Result{Outcome: model.OutcomeCancelled}
	}

	archivePath := segmentPaths[0]
	if strings.HasSuffix(segmentPaths[0], ".001") {
		assembled, err := assembleMultipart(segmentPaths)
		if err != nil {
			return Result{Outcome: model.OutcomeFailed, Err: err}
		}
		archivePath = assembled
	}

	emitArchiveTick(env, req, model.PhaseInstalling, 0, total)
	if err := extractArchive(ctx, archivePath, req.TargetDir); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}

	if err := os.RemoveAll(staging); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}
	if err := resume.Remove(req.TargetDir, resume.Downloading); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}

	emitArchiveTick(env, req, model.PhaseMoving, total, total)
	return Result{Outcome: model.OutcomeCompleted}
}

func emitArchiveTick(env *Env, req *Request, phase model.Phase, progress, total int64) {
	env.Emitter.Tick(req.Kind, model.ProgressRecord{
		JobID: req.JobID, Name: req.Name, Progress: progress, Total: total, Phase: phase,
	})
}

func segmentFilename(u string) string {
	parts := strings.Split(u, "/")
	return parts[len(parts)-1]
}

func fileMatchesSize(path string, size int64) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() == size
}

func downloadSegment(ctx context.Context, env *Env, req *Request, urlStr, dest string) (int64, error) {
	httpReq, err := newRequest(ctx, http.MethodGet, urlStr, env.UserAgent, env.Headers, env.Cookies)
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

	// Write under a uuid-suffixed name first so a process kill mid-write
	// never leaves a file at dest whose size happens to match what a
	// later run's fileMatchesSize resume check would accept as complete.
	tmp := dest + ".part-" + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, 256*1024)
	var written int64
	for {
		if err := checkCancel(ctx, req.Handle); err != nil {
			f.Close()
			os.Remove(tmp)
			return written, ErrCancelled
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := env.Bandwidth.Wait(ctx, n); err != nil {
				f.Close()
				os.Remove(tmp)
				return written, err
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				os.Remove(tmp)
				return written, werr
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			os.Remove(tmp)
			return written, readErr
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return written, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return written, err
	}
	return written, nil
}

// assembleMultipart concatenates numbered ".001", ".002", ... parts into
// a single archive file sitting alongside them, returning its path.
func assembleMultipart(parts []string) (string, error) {
	sorted := append([]string(nil), parts...)
	sort.Strings(sorted)

	base := strings.TrimSuffix(sorted[0], filepath.Ext(sorted[0]))
	out, err := os.Create(base)
	if err != nil {
		return "", err
	}
	defer out.Close()

	for _, p := range sorted {
		in, err := os.Open(p)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return "", err
		}
	}
	return base, nil
}

func extractArchive(ctx context.Context, archivePath, targetDir string) error {
	cmd := exec.CommandContext(ctx, ExtractorPath, "x", archivePath, "-o"+targetDir, "-y")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("extraction failed: %w: %s", err, string(out))
	}
	return nil
}
