// Package transfer implements the three content-delivery engines
// (Archive, Sophon, Raw) and the shared Patch Engine (spec.md §4.C-F).
// Every engine takes the same four inputs — a target directory, a
// cancellation handle, a verified-hash set and a progress sink — and
// returns an Outcome, so the queue scheduler (internal/queue) can drive
// any of them identically.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Minlor/TwintailLauncher/internal/bandwidth"
	"github.com/Minlor/TwintailLauncher/internal/congestion"
	"github.com/Minlor/TwintailLauncher/internal/filesystem"
	"github.com/Minlor/TwintailLauncher/internal/integrity"
	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/progress"
	"github.com/Minlor/TwintailLauncher/internal/token"
)

// ErrCancelled is returned by an engine run that observed a cancelled
// token at an I/O boundary (spec.md §4.A).
var ErrCancelled = errors.New("transfer: cancelled")

// ErrInsufficientDisk is returned by the Patch Engine's preflight check
// (spec.md §4.F) before any mutation has happened.
var ErrInsufficientDisk = errors.New("transfer: insufficient disk space for patch")

// ErrLinkExpired mirrors the teacher's 403-means-stale-URL sentinel
// (internal/engine/http.go's ErrLinkExpired), reused across every engine
// that does ranged or plain GETs against signed CDN URLs.
var ErrLinkExpired = errors.New("transfer: link expired or access denied (403)")

const (
	maxPartRetries = 3
	probeTimeout   = 30 * time.Second
)

// Env bundles the shared collaborators every engine needs. cmd/launchercore's
// runner copies a shared Env per job (filling in the job's headers, cookies
// and user agent) and passes it down; engines never reach for a global.
type Env struct {
	Client      *http.Client
	Bandwidth   *bandwidth.Manager
	Congestion  *congestion.CongestionController
	Allocator   *filesystem.Allocator
	Verifier    *integrity.FileVerifier
	Emitter     *progress.Emitter
	VerifiedSet *token.VerifiedSets
	Headers     string
	Cookies     string
	UserAgent   string
}

// Request describes one engine run: the install it targets, the
// directory to populate, and the manifest location(s) to pull from.
// Individual engines read the Manifest fields they understand and
// ignore the rest.
type Request struct {
	InstallID   string
	JobID       uint64
	Kind        model.JobKind
	Name        string
	TargetDir   string
	SegmentURLs []string // Archive: ordered split-archive/full-file segment URLs
	ManifestURL string   // Raw: top-level manifest location
	BaseURL     string   // Raw: base resource URL the manifest's paths are relative to
	SkipHash    bool
	Handle      *token.Handle
}

// Result reports what happened. Outcome is always one of the three
// model.Outcome values; Err is set on OutcomeFailed.
type Result struct {
	Outcome model.Outcome
	Err     error
}

func cancelled(h *token.Handle) bool {
	return h != nil && h.Cancelled()
}

func checkCancel(ctx context.Context, h *token.Handle) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if cancelled(h) {
		return ErrCancelled
	}
	return nil
}

func newRequest(ctx context.Context, method, urlStr, userAgent, headersJSON, cookies string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, err
	}
	if userAgent == "" {
		userAgent = "TwintailLauncher/1.0"
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")
	if headersJSON != "" {
		applyHeaders(req, headersJSON)
	}
	if cookies != "" {
		req.Header.Set("Cookie", cookies)
	}
	return req, nil
}

func friendlyHTTPError(status int) error {
	switch status {
	case http.StatusForbidden:
		return ErrLinkExpired
	case http.StatusNotFound:
		return fmt.Errorf("resource not found (404)")
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited by server, try again later (429)")
	default:
		return fmt.Errorf("unexpected server response: %d", status)
	}
}
