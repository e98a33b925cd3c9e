package monitor

import (
	"time"

	"github.com/tourwise/pulse/pkg/alerts"
	"github.com/tourwise/pulse/pkg/metrics"
	"github.com/tourwise/pulse/pkg/probes"
)

// Trend classifies the direction of a metric series.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

const (
	trendWindow         = 10
	trendSlopeThreshold = 0.5
	recentAlertCount    = 10
)

// resourceMetricNames are the gauges surfaced on the system dashboard.
var resourceMetricNames = []string{
	probes.MetricCPUUsage,
	probes.MetricMemoryUsage,
	probes.MetricDiskUsage,
	probes.MetricNetBytesSent,
	probes.MetricNetBytesRecv,
}

// ResourceReading is the latest value of one resource gauge together with its
// short-term direction.
type ResourceReading struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Trend     Trend     `json:"trend"`
}

// SystemDashboard is the aggregated health view served to operators. It is
// assembled fresh on every call from current store state; slight staleness
// between sections is acceptable and expected.
type SystemDashboard struct {
	GeneratedAt  time.Time                        `json:"generated_at"`
	Resources    map[string]ResourceReading       `json:"resources"`
	Services     map[string]metrics.ServiceHealth `json:"services"`
	RecentAlerts []alerts.Event                   `json:"recent_alerts"`
}

// SystemHealthDashboard assembles the current resource readings, every
// service health record, and the most recent alerts into one snapshot.
func (s *Service) SystemHealthDashboard() SystemDashboard {
	dash := SystemDashboard{
		GeneratedAt:  time.Now().UTC(),
		Resources:    make(map[string]ResourceReading),
		Services:     s.store.AllHealth(),
		RecentAlerts: s.alertLog.Recent(recentAlertCount),
	}

	for _, name := range resourceMetricNames {
		latest, ok := s.store.Latest(name)
		if !ok {
			continue
		}
		dash.Resources[name] = ResourceReading{
			Value:     latest.Value,
			Timestamp: latest.Timestamp,
			Trend:     s.resourceTrend(name),
		}
	}
	return dash
}

// resourceTrend classifies the direction of the last few samples of a series.
func (s *Service) resourceTrend(name string) Trend {
	recent := s.store.Query(name, trendWindow)
	values := make([]float64, len(recent))
	for i, m := range recent {
		// Query is newest-first; the fit wants chronological order.
		values[len(recent)-1-i] = m.Value
	}
	return classifyTrend(values)
}

// classifyTrend fits a least-squares line through chronologically ordered
// samples and buckets the slope. Short series are stable by definition.
func classifyTrend(values []float64) Trend {
	n := len(values)
	if n < 2 {
		return TrendStable
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return TrendStable
	}
	slope := (float64(n)*sumXY - sumX*sumY) / denom

	switch {
	case slope > trendSlopeThreshold:
		return TrendIncreasing
	case slope < -trendSlopeThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
