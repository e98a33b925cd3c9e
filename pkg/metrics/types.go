// Package metrics holds the metric and service-health data model plus the
// bounded in-memory store shared by every polling loop.
package metrics

import (
	"fmt"
	"time"
)

// Kind classifies a recorded metric value.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
	KindTimer     Kind = "timer"
)

// ErrUnknownKind is returned when a caller submits a metric with a kind
// outside the supported set.
var ErrUnknownKind = fmt.Errorf("unknown metric kind")

// ParseKind validates a metric kind supplied by an external caller.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCounter, KindGauge, KindHistogram, KindTimer:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Metric is a single recorded measurement. Metrics are immutable once created;
// the store appends them and evicts oldest-first when a series overflows.
type Metric struct {
	Name        string            `json:"name"`
	Value       float64           `json:"value"`
	Kind        Kind              `json:"kind"`
	Timestamp   time.Time         `json:"timestamp"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
}

// HealthState is the normalized status of a monitored dependency.
type HealthState string

const (
	StateHealthy   HealthState = "healthy"
	StateDegraded  HealthState = "degraded"
	StateUnhealthy HealthState = "unhealthy"
	StateUnknown   HealthState = "unknown"
)

// ServiceHealth is the current belief about one monitored service. Exactly one
// live record exists per service; each check overwrites the previous one.
type ServiceHealth struct {
	ServiceName    string            `json:"service_name"`
	Status         HealthState       `json:"status"`
	ResponseTimeMs float64           `json:"response_time_ms"`
	LastCheck      time.Time         `json:"last_check"`
	ErrorRatePct   float64           `json:"error_rate_pct"`
	UptimePct      float64           `json:"uptime_pct"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
