package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tourwise/pulse/pkg/logging"
	"github.com/tourwise/pulse/pkg/metrics"
)

// CallAnalyticsSnapshot is a rolling 24h aggregate of call activity.
// Snapshots are recomputed wholesale by the call analytics loop and never
// partially updated.
type CallAnalyticsSnapshot struct {
	GeneratedAt          time.Time      `json:"generated_at"`
	WindowHours          int            `json:"window_hours"`
	TotalCalls           int            `json:"total_calls"`
	CompletedCalls       int            `json:"completed_calls"`
	FailedCalls          int            `json:"failed_calls"`
	AvgDurationSeconds   float64        `json:"avg_duration_seconds"`
	CallsByCountry       map[string]int `json:"calls_by_country"`
	SentimentCounts      map[string]int `json:"sentiment_counts"`
	BookingConversionPct float64        `json:"booking_conversion_pct"`
}

// SchedulingAnalyticsSnapshot is a rolling 24h aggregate of appointment
// scheduling activity.
type SchedulingAnalyticsSnapshot struct {
	GeneratedAt           time.Time      `json:"generated_at"`
	WindowHours           int            `json:"window_hours"`
	AppointmentsScheduled int            `json:"appointments_scheduled"`
	AppointmentsCompleted int            `json:"appointments_completed"`
	NoShows               int            `json:"no_shows"`
	ShowUpRatePct         float64        `json:"show_up_rate_pct"`
	ByTimezone            map[string]int `json:"by_timezone"`
	ByWindow              map[string]int `json:"by_window"`
	AvgLeadTimeHours      float64        `json:"avg_lead_time_hours"`
}

// CallAnalyticsSource computes the current 24h call rollup. Implementations
// may be slow; the calling loop is paced accordingly.
type CallAnalyticsSource interface {
	CallSnapshot(ctx context.Context) (*CallAnalyticsSnapshot, error)
}

// SchedulingAnalyticsSource computes the current 24h scheduling rollup.
type SchedulingAnalyticsSource interface {
	SchedulingSnapshot(ctx context.Context) (*SchedulingAnalyticsSnapshot, error)
}

// snapshotCache holds the latest analytics rollup with a freshness TTL. A
// stale value is treated as absent. When a durable cache is attached the
// snapshot is written through so a restarted process can serve dashboards
// before its first refresh completes.
type snapshotCache[T any] struct {
	mu       sync.RWMutex
	value    *T
	storedAt time.Time

	ttl    time.Duration
	key    string
	cache  metrics.Cache // may be nil
	logger *logging.StructuredLogger
}

func newSnapshotCache[T any](key string, ttl time.Duration, cache metrics.Cache, logger *logging.StructuredLogger) *snapshotCache[T] {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &snapshotCache[T]{
		ttl:    ttl,
		key:    key,
		cache:  cache,
		logger: logger,
	}
}

func (c *snapshotCache[T]) set(ctx context.Context, v *T) {
	now := time.Now()

	c.mu.Lock()
	c.value = v
	c.storedAt = now
	c.mu.Unlock()

	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Put(ctx, c.key, raw, c.ttl); err != nil {
		c.logger.Warn("analytics cache write failed, serving from memory only",
			"key", c.key, "error", err.Error())
	}
}

// get returns the snapshot and true while it is fresh. A stale or missing
// value falls through to the durable cache before reporting absence.
func (c *snapshotCache[T]) get(ctx context.Context) (*T, bool) {
	c.mu.RLock()
	v, storedAt := c.value, c.storedAt
	c.mu.RUnlock()

	if v != nil && time.Since(storedAt) < c.ttl {
		return v, true
	}

	if c.cache != nil {
		raw, found, err := c.cache.Get(ctx, c.key)
		if err == nil && found {
			var restored T
			if err := json.Unmarshal(raw, &restored); err == nil {
				c.mu.Lock()
				c.value = &restored
				c.storedAt = time.Now()
				c.mu.Unlock()
				return &restored, true
			}
		}
	}
	return nil, false
}
