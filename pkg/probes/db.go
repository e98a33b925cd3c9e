package probes

import (
	"context"
	"time"

	"github.com/tourwise/pulse/pkg/logging"
	"github.com/tourwise/pulse/pkg/metrics"
)

// degradedLatencyMs is the round-trip latency above which the database is
// considered degraded rather than healthy.
const degradedLatencyMs = 100.0

// PingFunc performs one trivial database round trip.
type PingFunc func(ctx context.Context) error

// DBProbe checks database connectivity and latency with a trivial round-trip
// query. A completed round trip under 100ms is healthy, anything slower is
// degraded; a connection failure is unhealthy with uptime forced to zero.
type DBProbe struct {
	name    string
	ping    PingFunc
	timeout time.Duration
	logger  *logging.StructuredLogger
}

// NewDBProbe creates a database probe around a ping function, typically
// (*sql.DB).PingContext or a SELECT 1 wrapper.
func NewDBProbe(name string, ping PingFunc, timeout time.Duration, logger *logging.StructuredLogger) *DBProbe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &DBProbe{
		name:    name,
		ping:    ping,
		timeout: timeout,
		logger:  logger.WithComponent("db_probe"),
	}
}

// Name returns the monitored service name.
func (p *DBProbe) Name() string { return p.name }

// Check runs one round trip and classifies the result.
func (p *DBProbe) Check(ctx context.Context) metrics.ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.ping(ctx)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	health := metrics.ServiceHealth{
		ServiceName:    p.name,
		ResponseTimeMs: elapsed,
		LastCheck:      time.Now(),
		Metadata:       map[string]string{},
	}

	if err != nil {
		p.logger.Warn("database check failed", "service", p.name, "error", err.Error())
		health.Status = metrics.StateUnhealthy
		health.ErrorRatePct = 100
		health.UptimePct = 0
		health.Metadata[metaUptimePinned] = "true"
		health.Metadata["error"] = err.Error()
		return health
	}

	if elapsed < degradedLatencyMs {
		health.Status = metrics.StateHealthy
	} else {
		health.Status = metrics.StateDegraded
	}
	health.UptimePct = 100
	return health
}
