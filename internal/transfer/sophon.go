package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Minlor/TwintailLauncher/internal/integrity"
	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/resume"
)

// SophonChunk is one content-addressed chunk referenced by one or more
// files in a manifest.
type SophonChunk struct {
	ID     string
	URL    string
	Size   int64
	Hash   string // sha256 of the chunk's bytes
	Offset int64  // byte offset within its owning file
}

// SophonFile is one target file composed from an ordered list of chunks.
type SophonFile struct {
	Path   string
	Size   int64
	Hash   string
	Chunks []SophonChunk
}

// SophonManifest is a single region-scoped manifest (spec.md §4.D): the
// set of files it describes and the chunks that compose them.
type SophonManifest struct {
	Region string
	Files  []SophonFile
	Final  bool // true only for the last manifest in the job's sequence
}

// RunSophon implements the Sophon chunked transfer engine across a
// sequence of manifests (spec.md §4.D), maintaining cumulative
// (download, install) counters across them and remapping a non-final
// manifest's Moving phase back to Downloading so the UI bar stays
// monotonic and continuous.
func RunSophon(ctx context.Context, env *Env, req *Request, manifests []SophonManifest) Result {
	var totalBytes, totalFiles int64
	for _, m := range manifests {
		for _, f := range m.Files {
			totalBytes += f.Size
			totalFiles++
		}
	}

	var cumDownload, cumInstall int64

	for _, manifest := range manifests {
		res := runSophonManifest(ctx, env, req, manifest, &cumDownload, &cumInstall, totalBytes, totalFiles)
		if res.Outcome != model.OutcomeCompleted {
			return res
		}
	}
	return Result{Outcome: model.OutcomeCompleted}
}

func runSophonManifest(ctx context.Context, env *Env, req *Request, m SophonManifest, cumDownload, cumInstall *int64, totalBytes, totalFiles int64) Result {
	if err := resume.Create(req.TargetDir, resume.Downloading); err != nil {
		return Result{Outcome: model.OutcomeFailed, Err: err}
	}

	// Phase 1: Verifying — skip files already verified this run or on a
	// prior interrupted run (their ids persisted in the verified set).
	needed := make([]SophonFile, 0, len(m.Files))
	for _, f := range m.Files {
		if err := checkCancel(ctx, req.Handle); err != nil {
			return Result{Outcome: model.OutcomeCancelled}
		}
		env.Emitter.Tick(req.Kind, model.ProgressRecord{
			JobID: req.JobID, Name: req.Name, Phase: model.PhaseVerifying,
			Progress: *cumDownload, Total: totalBytes,
			InstallProgress: *cumInstall, InstallTotal: totalFiles,
		})

		if env.VerifiedSet.Contains(req.InstallID, f.Path) {
			*cumDownload += f.Size
			continue
		}
		if req.SkipHash {
			if fileMatchesSize(filepath.Join(req.TargetDir, f.Path), f.Size) {
				env.VerifiedSet.Add(req.InstallID, f.Path)
				*cumDownload += f.Size
				continue
			}
		} else if verified := verifySophonFile(env, req.TargetDir, f); verified {
			env.VerifiedSet.Add(req.InstallID, f.Path)
			*cumDownload += f.Size
			continue
		}
		needed = append(needed, f)
	}

	// Phases 2-4 run per pending file with a 3-attempt validation retry
	// budget: a file that fails Validating drops back to Downloading for
	// that file alone, not the whole manifest.
	pending := needed
	for attempt := 1; len(pending) > 0; attempt++ {
		if attempt > maxPartRetries {
			return Result{Outcome: model.OutcomeFailed, Err: fmt.Errorf("validation failed for %d file(s) after %d attempts", len(pending), maxPartRetries)}
		}

		// Phase 2: Downloading — fetch missing chunks concurrently.
		for i := range pending {
			if err := checkCancel(ctx, req.Handle); err != nil {
				return Result{Outcome: model.OutcomeCancelled}
			}
			if err := downloadChunksForFile(ctx, env, req, pending[i], cumDownload, totalBytes, *cumInstall, totalFiles); err != nil {
				if err == ErrCancelled {
					return Result{Outcome: model.OutcomeCancelled}
				}
				return Result{Outcome: model.OutcomeFailed, Err: err}
			}
		}

		// Phase 3: Installing — compose each file from its chunks.
		for _, f := range pending {
			if err := checkCancel(ctx, req.Handle); err != nil {
				return Result{Outcome: model.OutcomeCancelled}
			}
			env.Emitter.Tick(req.Kind, model.ProgressRecord{
				JobID: req.JobID, Name: req.Name, Phase: model.PhaseInstalling,
				Progress: *cumDownload, Total: totalBytes,
				InstallProgress: *cumInstall, InstallTotal: totalFiles,
			})
			if err := composeFile(req.TargetDir, f); err != nil {
				return Result{Outcome: model.OutcomeFailed, Err: err}
			}
		}

		if req.SkipHash {
			*cumInstall += int64(len(pending))
			break
		}

		// Phase 4: Validating — files that fail go back through phase 2
		// on the next attempt; their chunks are evicted from the verified
		// set so re-downloading isn't silently skipped.
		var retry []SophonFile
		for _, f := range pending {
			if verifySophonFile(env, req.TargetDir, f) {
				*cumInstall++
				continue
			}
			for _, c := range f.Chunks {
				env.VerifiedSet.Remove(req.InstallID, c.ID)
			}
			env.Emitter.Tick(req.Kind, model.ProgressRecord{
				JobID: req.JobID, Name: req.Name, Phase: model.PhaseDownloading,
				Progress: *cumDownload, Total: totalBytes,
				InstallProgress: *cumInstall, InstallTotal: totalFiles,
			})
			retry = append(retry, f)
		}
		pending = retry
	}

	// Phase 5: Moving. A non-final manifest's Moving is reported as
	// Downloading (spec.md §4.D cross-manifest sequencing rule).
	reportPhase := model.PhaseMoving
	if !m.Final {
		reportPhase = model.PhaseDownloading
	}
	env.Emitter.Tick(req.Kind, model.ProgressRecord{
		JobID: req.JobID, Name: req.Name, Phase: reportPhase,
		Progress: *cumDownload, Total: totalBytes,
		InstallProgress: *cumInstall, InstallTotal: totalFiles,
	})

	return Result{Outcome: model.OutcomeCompleted}
}

func verifySophonFile(env *Env, targetDir string, f SophonFile) bool {
	path := filepath.Join(targetDir, f.Path)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if f.Hash == "" {
		return true
	}
	hash, err := integrity.CalculateHash(path, "sha256")
	return err == nil && hash == f.Hash
}

func downloadChunksForFile(ctx context.Context, env *Env, req *Request, f SophonFile, cumDownload *int64, totalBytes, cumInstall, totalFiles int64) error {
	partDir := filepath.Join(resume.StagingDir(req.TargetDir), "chunks")
	if err := os.MkdirAll(partDir, 0o755); err != nil {
		return err
	}

	chunkCh := make(chan SophonChunk, len(f.Chunks))
	for _, c := range f.Chunks {
		if env.VerifiedSet.Contains(req.InstallID, c.ID) {
			continue
		}
		chunkCh <- c
	}
	close(chunkCh)

	host := hostOf(f.Chunks)
	workers := env.Congestion.GetIdealConcurrency(host)
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	var downloaded int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range chunkCh {
				if err := checkCancel(ctx, req.Handle); err != nil {
					errCh <- ErrCancelled
					return
				}
				start := time.Now()
				err := fetchChunk(ctx, env, req, partDir, c)
				env.Congestion.RecordOutcome(host, time.Since(start), err)
				if err != nil {
					errCh <- err
					return
				}
				env.VerifiedSet.Add(req.InstallID, c.ID)
				atomic.AddInt64(&downloaded, c.Size)
				atomic.AddInt64(cumDownload, c.Size)
				env.Emitter.Tick(req.Kind, model.ProgressRecord{
					JobID: req.JobID, Name: req.Name, Phase: model.PhaseDownloading,
					Progress: atomic.LoadInt64(cumDownload), Total: totalBytes,
					InstallProgress: cumInstall, InstallTotal: totalFiles,
				})
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func hostOf(chunks []SophonChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	u, err := url.Parse(chunks[0].URL)
	if err != nil {
		return chunks[0].URL
	}
	return u.Host
}

func fetchChunk(ctx context.Context, env *Env, req *Request, partDir string, c SophonChunk) error {
	var lastErr error
	for attempt := 0; attempt < maxPartRetries; attempt++ {
		if err := checkCancel(ctx, req.Handle); err != nil {
			return err
		}
		err := fetchChunkOnce(ctx, env, req, partDir, c)
		if err == nil {
			return nil
		}
		if err == ErrLinkExpired {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("chunk %s exhausted retries: %w", c.ID, lastErr)
}

func fetchChunkOnce(ctx context.Context, env *Env, req *Request, partDir string, c SophonChunk) error {
	httpReq, err := newRequest(ctx, http.MethodGet, c.URL, env.UserAgent, env.Headers, env.Cookies)
	if err != nil {
		return err
	}
	resp, err := env.Client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return ErrLinkExpired
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return friendlyHTTPError(resp.StatusCode)
	}

	dest := filepath.Join(partDir, c.ID)
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := env.Bandwidth.Wait(ctx, n); err != nil {
				return err
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	return nil
}

// composeFile concatenates a file's downloaded chunks, in order, into
// its final target path.
func composeFile(targetDir string, f SophonFile) error {
	dest := filepath.Join(targetDir, f.Path)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	partDir := filepath.Join(resume.StagingDir(targetDir), "chunks")
	for _, c := range f.Chunks {
		in, err := os.Open(filepath.Join(partDir, c.ID))
		if err != nil {
			return err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
