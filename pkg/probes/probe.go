// Package probes implements the health checks run by the polling loops. A
// probe performs exactly one check against one dependency and returns a
// normalized ServiceHealth record. Probes never write to the metric store;
// persisting results is the caller's job, which keeps every probe testable in
// isolation.
package probes

import (
	"context"
	"sync"
	"time"

	"github.com/tourwise/pulse/pkg/metrics"
)

// DefaultTimeout bounds a single check so a loop can never hang on one
// unresponsive dependency.
const DefaultTimeout = 10 * time.Second

// Probe checks one dependency.
type Probe interface {
	Name() string
	Check(ctx context.Context) metrics.ServiceHealth
}

// UptimeTracker derives uptime_pct from observed check outcomes instead of
// reporting a constant. It keeps a sliding window of results per service.
type UptimeTracker struct {
	mu      sync.Mutex
	window  int
	history map[string][]bool
}

// NewUptimeTracker creates a tracker with the given window size.
func NewUptimeTracker(window int) *UptimeTracker {
	if window <= 0 {
		window = 100
	}
	return &UptimeTracker{
		window:  window,
		history: make(map[string][]bool),
	}
}

// metaUptimePinned marks a record whose UptimePct must not be replaced by
// observed-ratio accounting. Only the database probe sets it, on a dead
// connection.
const metaUptimePinned = "uptime_pinned"

// Observe records the outcome of a check and returns the health record with
// UptimePct set to the observed success ratio. A record whose uptime the
// probe pinned (a dead database connection forces 0%) is passed through.
func (t *UptimeTracker) Observe(h metrics.ServiceHealth) metrics.ServiceHealth {
	ok := h.Status == metrics.StateHealthy || h.Status == metrics.StateDegraded

	t.mu.Lock()
	hist := append(t.history[h.ServiceName], ok)
	if len(hist) > t.window {
		hist = hist[len(hist)-t.window:]
	}
	t.history[h.ServiceName] = hist

	up := 0
	for _, v := range hist {
		if v {
			up++
		}
	}
	ratio := float64(up) / float64(len(hist)) * 100
	t.mu.Unlock()

	if h.Metadata[metaUptimePinned] == "true" {
		return h
	}
	h.UptimePct = ratio
	return h
}
