// Package diagnostics implements Network Diagnostics (spec.md §4.N): an
// on-demand speed test, independent of the Connectivity Monitor's cheap
// HEAD probes. Grounded on the teacher's internal/network/speedtest.go
// (showwin/speedtest-go, phase-callback shape) kept nearly verbatim; the
// result type gains a Recorder hook so a caller can persist it to the
// Settings Store's SpeedTestHistory table instead of the teacher's
// ad-hoc call-site bookkeeping.
package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/showwin/speedtest-go/speedtest"
)

// Result is one completed measurement.
type Result struct {
	DownloadMbps   float64
	UploadMbps     float64
	PingMs         int64
	JitterMs       int64
	ServerName     string
	ServerLocation string
	ServerHost     string
	ISP            string
	Timestamp      time.Time
}

// Phase mirrors the teacher's PhaseCallback shape: a caller can surface
// progress to a UI while a test that can take tens of seconds runs.
type Phase struct {
	Name         string // "connecting", "ping", "download", "upload", "complete"
	PingMs       int64
	DownloadMbps float64
	UploadMbps   float64
	ServerName   string
	ISP          string
}

// PhaseCallback is invoked at each phase transition, if non-nil.
type PhaseCallback func(Phase)

// RunSpeedTest runs a speed test against the nearest available server. ctx
// bounds the ping, download and upload tests; when ctx carries no deadline
// a 60s timeout is applied, matching the teacher's fixed timeout.
func RunSpeedTest(ctx context.Context, onPhase PhaseCallback) (Result, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}

	emit := func(p Phase) {
		if onPhase != nil {
			onPhase(p)
		}
	}

	emit(Phase{Name: "connecting"})

	user, err := speedtest.FetchUserInfo()
	if err != nil {
		return Result{}, fmt.Errorf("diagnostics: no internet connection: %w", err)
	}

	serverList, err := speedtest.FetchServers()
	if err != nil {
		return Result{}, fmt.Errorf("diagnostics: fetch servers: %w", err)
	}

	targets, err := serverList.FindServer([]int{})
	if err != nil || len(targets) == 0 {
		return Result{}, fmt.Errorf("diagnostics: no speed test servers available")
	}
	server := targets[0]

	emit(Phase{Name: "ping", ServerName: server.Name, ISP: user.Isp})

	if err := server.PingTestContext(ctx, nil); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("diagnostics: speed test timed out: %w", ctx.Err())
		}
		return Result{}, fmt.Errorf("diagnostics: ping test failed: %w", err)
	}
	pingMs := int64(server.Latency.Milliseconds())

	emit(Phase{Name: "download", PingMs: pingMs, ServerName: server.Name, ISP: user.Isp})

	if err := server.DownloadTestContext(ctx); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("diagnostics: speed test timed out during download: %w", ctx.Err())
		}
		return Result{}, fmt.Errorf("diagnostics: download test failed: %w", err)
	}
	downloadMbps := float64(server.DLSpeed) / 1000 / 1000 * 8

	emit(Phase{Name: "upload", PingMs: pingMs, DownloadMbps: downloadMbps, ServerName: server.Name, ISP: user.Isp})

	if err := server.UploadTestContext(ctx); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("diagnostics: speed test timed out during upload: %w", ctx.Err())
		}
		return Result{}, fmt.Errorf("diagnostics: upload test failed: %w", err)
	}
	uploadMbps := float64(server.ULSpeed) / 1000 / 1000 * 8

	result := Result{
		DownloadMbps:   downloadMbps,
		UploadMbps:     uploadMbps,
		PingMs:         pingMs,
		JitterMs:       int64(server.Jitter.Milliseconds()),
		ServerName:     server.Name,
		ServerLocation: fmt.Sprintf("%s, %s", server.Name, server.Country),
		ServerHost:     server.Host,
		ISP:            user.Isp,
		Timestamp:      time.Now(),
	}

	emit(Phase{
		Name:         "complete",
		PingMs:       pingMs,
		DownloadMbps: downloadMbps,
		UploadMbps:   uploadMbps,
		ServerName:   server.Name,
		ISP:          user.Isp,
	})

	return result, nil
}
