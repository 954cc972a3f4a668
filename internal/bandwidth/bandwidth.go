// Package bandwidth provides the global download speed limiter. A single
// token bucket is shared across every engine instance; callers adjust it
// by calling SetLimit (cmd/launchercore applies the settings store's cap
// at startup), never by touching individual jobs.
package bandwidth

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Manager wraps a token-bucket limiter with a zero-overhead disabled path.
type Manager struct {
	limiter      *rate.Limiter
	limitEnabled atomic.Bool
}

// NewManager creates a Manager with no limit (Wait is a no-op until
// SetLimit is called with a positive value).
func NewManager() *Manager {
	return &Manager{
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
}

// SetLimit updates the global speed limit in bytes per second. 0 or
// negative disables limiting entirely.
func (m *Manager) SetLimit(bytesPerSec int) {
	if bytesPerSec <= 0 {
		m.limitEnabled.Store(false)
		m.limiter.SetLimit(rate.Inf)
		return
	}
	m.limitEnabled.Store(true)
	m.limiter.SetLimit(rate.Limit(bytesPerSec))
	m.limiter.SetBurst(bytesPerSec) // allow a 1s burst
}

// Enabled reports whether a limit is currently in effect.
func (m *Manager) Enabled() bool {
	return m.limitEnabled.Load()
}

// Wait blocks until bytes may be consumed under the current limit, or
// returns immediately if no limit is set.
func (m *Manager) Wait(ctx context.Context, bytes int) error {
	if !m.limitEnabled.Load() {
		return nil
	}
	return m.limiter.WaitN(ctx, bytes)
}
