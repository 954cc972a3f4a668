// Package connectivity implements the Connectivity Monitor (spec.md §4.I):
// a background probe that auto-pauses the Job Queue Scheduler when the
// network drops and auto-resumes it once connectivity returns, but only
// if the pause was its own doing.
//
// Grounded almost line for line on the original implementation's
// connection_monitor.rs (5s cadence, 3-consecutive-failure threshold,
// `auto_pause`/`auto_resume`/`is_auto_paused`), translated into the
// teacher's idiom: slog logging and an `*http.Client` built the way
// internal/engine's HTTP helpers build theirs.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// defaultEndpoints mirrors the original monitor's probe list: a mix of
// hosts unlikely to all be down or blocked at once.
var defaultEndpoints = []string{
	"https://store.steampowered.com",
	"https://one.one.one.one",
	"https://twintaillauncher.app",
}

const (
	probeInterval    = 5 * time.Second
	probeTimeout     = 10 * time.Second
	failureThreshold = 3
)

// Pauser is the subset of queue.Scheduler the monitor drives. Declared
// locally so this package never imports internal/queue.
type Pauser interface {
	AutoPause()
	AutoResume()
}

// StatusNotifier publishes the `connection_status` UI event (spec.md §6).
// Declared locally so this package never imports internal/progress;
// progress.Emitter and uiemit.WailsSink both satisfy it.
type StatusNotifier interface {
	ConnectionStatus(online bool)
}

// Monitor periodically probes a handful of well-known endpoints and
// reports transitions between online and offline to a Pauser and a
// StatusNotifier.
type Monitor struct {
	logger    *slog.Logger
	client    *http.Client
	pauser    Pauser
	notifier  StatusNotifier
	endpoints []string

	consecutiveFailures int
	offline             bool
	wasAutoPaused       bool
}

// NewMonitor builds a Monitor. endpoints defaults to the built-in probe
// list when nil.
func NewMonitor(logger *slog.Logger, pauser Pauser, notifier StatusNotifier, endpoints []string) *Monitor {
	if endpoints == nil {
		endpoints = defaultEndpoints
	}
	return &Monitor{
		logger:    logger,
		client:    &http.Client{Timeout: probeTimeout},
		pauser:    pauser,
		notifier:  notifier,
		endpoints: endpoints,
	}
}

// Run polls until ctx is cancelled. Call it in its own goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if m.checkConnectivity(ctx) {
		m.consecutiveFailures = 0
		if m.offline {
			m.offline = false
			if m.wasAutoPaused {
				m.pauser.AutoResume()
				m.wasAutoPaused = false
				m.notifier.ConnectionStatus(true)
				m.logger.Info("connectivity restored, auto-resuming downloads")
			}
		}
		return
	}

	m.consecutiveFailures++
	if m.consecutiveFailures >= failureThreshold && !m.offline {
		m.offline = true
		m.wasAutoPaused = true
		m.pauser.AutoPause()
		m.notifier.ConnectionStatus(false)
		m.logger.Warn("connectivity lost, auto-pausing downloads", "consecutive_failures", m.consecutiveFailures)
	}
}

// checkConnectivity reports true the moment any endpoint answers with a
// successful or 204 status, matching the original's "any one endpoint up"
// criterion rather than requiring all of them.
func (m *Monitor) checkConnectivity(ctx context.Context) bool {
	for _, endpoint := range m.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			continue
		}
		resp, err := m.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusNoContent || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
			return true
		}
		// Some endpoints reject HEAD with 405 but are otherwise reachable;
		// treat that as a lenient success too.
		if resp.StatusCode == http.StatusMethodNotAllowed {
			return true
		}
	}
	return false
}
