// Package monitor runs the background polling loops of the monitoring
// service: system resource sampling, external service and database health
// checks, analytics rollups, and alert dispatch. Each loop is independently
// paced; none of them can crash the process.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tourwise/pulse/pkg/alerts"
	"github.com/tourwise/pulse/pkg/config"
	"github.com/tourwise/pulse/pkg/logging"
	"github.com/tourwise/pulse/pkg/metrics"
	"github.com/tourwise/pulse/pkg/probes"
)

const customMetricPrefix = "custom:"

// ResourceSampler produces raw resource gauges. Implemented by
// probes.ResourceProbe.
type ResourceSampler interface {
	Sample(ctx context.Context) []metrics.Metric
}

// Options carries the optional collaborators of a Service. Zero-value fields
// disable the corresponding loop or fall back to a no-op.
type Options struct {
	Resources       ResourceSampler
	ServiceProbes   []probes.Probe
	DatabaseProbe   probes.Probe
	CallAnalytics   CallAnalyticsSource
	SchedulingStats SchedulingAnalyticsSource
	AlertSink       alerts.Sink
	Cache           metrics.Cache
	Logger          *logging.StructuredLogger
}

// Service owns the polling loops and the state they feed. Loops share state
// only through the metric store and the alert log, both safe for concurrent
// use, so a slow analytics query never stalls resource sampling.
type Service struct {
	cfg   *config.Config
	store *metrics.Store

	resources     ResourceSampler
	serviceProbes []probes.Probe
	dbProbe       probes.Probe
	uptime        *probes.UptimeTracker

	callSource  CallAnalyticsSource
	schedSource SchedulingAnalyticsSource
	callCache   *snapshotCache[CallAnalyticsSnapshot]
	schedCache  *snapshotCache[SchedulingAnalyticsSnapshot]

	alertLog *alerts.Log
	sink     alerts.Sink

	thMu       sync.RWMutex
	thresholds map[string]alerts.Threshold

	exporter *Exporter
	logger   *logging.StructuredLogger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService wires a monitoring service from configuration and collaborators.
func NewService(cfg *config.Config, store *metrics.Store, opts Options) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	logger = logger.WithComponent("monitor")

	sink := opts.AlertSink
	if sink == nil {
		sink = alerts.NopSink{}
	}
	if store == nil {
		store = metrics.NewStore(logger)
	}

	svc := &Service{
		cfg:           cfg,
		store:         store,
		resources:     opts.Resources,
		serviceProbes: opts.ServiceProbes,
		dbProbe:       opts.DatabaseProbe,
		uptime:        probes.NewUptimeTracker(0),
		callSource:    opts.CallAnalytics,
		schedSource:   opts.SchedulingStats,
		callCache:     newSnapshotCache[CallAnalyticsSnapshot]("analytics:calls", cfg.AnalyticsTTL, opts.Cache, logger),
		schedCache:    newSnapshotCache[SchedulingAnalyticsSnapshot]("analytics:scheduling", cfg.AnalyticsTTL, opts.Cache, logger),
		alertLog:      alerts.NewLog(),
		sink:          sink,
		exporter:      NewExporter(),
		logger:        logger,
	}
	svc.SetThresholds(cfg.Thresholds)
	return svc
}

// SetThresholds replaces the live alert threshold table. Safe to call while
// loops are running; the next evaluation sees the new table. The map is
// copied so callers keep no handle into Service state.
func (s *Service) SetThresholds(thresholds map[string]alerts.Threshold) {
	next := make(map[string]alerts.Threshold, len(thresholds))
	for name, th := range thresholds {
		next[name] = th
	}
	s.thMu.Lock()
	s.thresholds = next
	s.thMu.Unlock()
}

// Exporter exposes the Prometheus mirror for scrape wiring.
func (s *Service) Exporter() *Exporter { return s.exporter }

// Store exposes the metric store for on-demand readers.
func (s *Service) Store() *metrics.Store { return s.store }

// RecentAlerts returns the most recent alert events, newest first.
func (s *Service) RecentAlerts(n int) []alerts.Event { return s.alertLog.Recent(n) }

// Start launches every configured loop. Loops without a collaborator are not
// started. Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)

	type loop struct {
		name     string
		interval time.Duration
		tick     func(context.Context) error
		enabled  bool
	}
	for _, l := range []loop{
		{"system_resources", s.cfg.Intervals.SystemResources, s.collectSystemResources, s.resources != nil},
		{"external_services", s.cfg.Intervals.ExternalServices, s.checkExternalServices, len(s.serviceProbes) > 0},
		{"database", s.cfg.Intervals.Database, s.checkDatabase, s.dbProbe != nil},
		{"call_analytics", s.cfg.Intervals.CallAnalytics, s.refreshCallAnalytics, s.callSource != nil},
		{"scheduling_analytics", s.cfg.Intervals.SchedulingAnalytics, s.refreshSchedulingAnalytics, s.schedSource != nil},
		{"alert_dispatch", s.cfg.Intervals.AlertDispatch, s.dispatchAlerts, true},
	} {
		if !l.enabled {
			s.logger.Info("loop disabled, no collaborator wired", "loop", l.name)
			continue
		}
		s.wg.Add(1)
		go s.runLoop(ctx, l.name, l.interval, l.tick)
	}
	s.logger.Info("monitoring loops started")
}

// Stop requests cooperative shutdown and waits for every loop to exit. Loops
// observe cancellation at their next sleep boundary; bounded probe timeouts
// cap how long an in-flight tick can hold shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("monitoring loops stopped")
}

// runLoop drives one polling loop: an immediate first tick, then fixed-pace
// ticks until cancellation. A failed tick doubles the next sleep instead of
// propagating.
func (s *Service) runLoop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) {
	defer s.wg.Done()
	logger := s.logger.WithComponent(name)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("loop exiting")
			return
		case <-timer.C:
		}

		wait := interval
		if err := s.safeTick(ctx, tick); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = 2 * interval
			s.exporter.TickFailed(name)
			logger.Warn("tick failed, backing off",
				"error", err.Error(), "retry_in", wait.String())
		} else {
			s.exporter.TickCompleted(name)
		}
		timer.Reset(wait)
	}
}

// safeTick converts a tick panic into an error so one bad tick cannot take
// down its loop.
func (s *Service) safeTick(ctx context.Context, tick func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return tick(ctx)
}

// collectSystemResources samples resource gauges, records them, and evaluates
// alert thresholds against the just-written values.
func (s *Service) collectSystemResources(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	samples := s.resources.Sample(ctx)
	if len(samples) == 0 {
		return fmt.Errorf("resource sampling produced no gauges")
	}
	for _, m := range samples {
		s.store.Record(m)
		s.exporter.ObserveResource(m.Name, m.Value)
		s.evaluateThreshold(m.Name, m.Value)
	}
	return nil
}

// checkExternalServices polls each configured service probe sequentially so
// two checks never write the same health key concurrently.
func (s *Service) checkExternalServices(ctx context.Context) error {
	for _, p := range s.serviceProbes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.observeProbe(ctx, p)
	}
	return nil
}

func (s *Service) checkDatabase(ctx context.Context) error {
	s.observeProbe(ctx, s.dbProbe)
	return nil
}

// observeProbe runs one health check and records its outcome. Probe failures
// surface as unhealthy records, never as errors.
func (s *Service) observeProbe(ctx context.Context, p probes.Probe) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	h := s.uptime.Observe(p.Check(ctx))
	s.store.SetHealth(h)
	s.store.Record(metrics.Metric{
		Name:        h.ServiceName + "_response_time_ms",
		Value:       h.ResponseTimeMs,
		Kind:        metrics.KindTimer,
		Timestamp:   h.LastCheck,
		Labels:      map[string]string{"service": h.ServiceName},
		Description: "Health check round trip",
	})
	s.exporter.ObserveHealth(h)

	if h.Status == metrics.StateUnhealthy {
		s.logger.Warn("service unhealthy", "service", h.ServiceName, "metadata", h.Metadata)
	}
}

func (s *Service) refreshCallAnalytics(ctx context.Context) error {
	snap, err := s.callSource.CallSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("call analytics refresh: %w", err)
	}
	s.callCache.set(ctx, snap)
	return nil
}

func (s *Service) refreshSchedulingAnalytics(ctx context.Context) error {
	snap, err := s.schedSource.SchedulingSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("scheduling analytics refresh: %w", err)
	}
	s.schedCache.set(ctx, snap)
	return nil
}

// dispatchAlerts forwards not-yet-delivered alert events to the notification
// sink. Events stay queued across failed deliveries.
func (s *Service) dispatchAlerts(ctx context.Context) error {
	pending := s.alertLog.Undispatched()
	if len(pending) == 0 {
		return nil
	}
	if err := s.sink.Notify(ctx, pending); err != nil {
		return fmt.Errorf("alert dispatch: %w", err)
	}
	s.alertLog.MarkDispatched(pending)
	return nil
}

// evaluateThreshold appends an alert event when the metric breaches its
// configured two-tier threshold.
func (s *Service) evaluateThreshold(name string, value float64) {
	s.thMu.RLock()
	th, ok := s.thresholds[name]
	s.thMu.RUnlock()
	if !ok {
		return
	}
	ev, fired := alerts.Evaluate(name, value, th)
	if !fired {
		return
	}
	stamped := s.alertLog.Append(ev)
	s.exporter.AlertRaised(string(stamped.Severity))
	s.logger.Warn("alert raised",
		"metric", stamped.MetricName, "severity", string(stamped.Severity), "value", stamped.Value)
}

// RecordCustomMetric accepts an externally produced metric. Invalid input is
// the one failure this package reports to its immediate caller.
func (s *Service) RecordCustomMetric(name string, value float64, kind metrics.Kind, labels map[string]string, description string) error {
	if name == "" {
		return fmt.Errorf("metric name must not be empty")
	}
	if _, err := metrics.ParseKind(string(kind)); err != nil {
		return fmt.Errorf("metric %q: %w", name, err)
	}

	s.store.Record(metrics.Metric{
		Name:        customMetricPrefix + name,
		Value:       value,
		Kind:        kind,
		Timestamp:   time.Now().UTC(),
		Labels:      labels,
		Description: description,
	})
	s.evaluateThreshold(name, value)
	return nil
}

// CustomMetrics returns recent samples of a caller-recorded metric, newest
// first. Unknown names yield an empty slice.
func (s *Service) CustomMetrics(name string, limit int) []metrics.Metric {
	return s.store.Query(customMetricPrefix+name, limit)
}

// CallAnalyticsDashboard returns the cached 24h call rollup, reporting
// absence once the snapshot has gone stale.
func (s *Service) CallAnalyticsDashboard(ctx context.Context) (*CallAnalyticsSnapshot, bool) {
	return s.callCache.get(ctx)
}

// SchedulingAnalyticsDashboard returns the cached 24h scheduling rollup.
func (s *Service) SchedulingAnalyticsDashboard(ctx context.Context) (*SchedulingAnalyticsSnapshot, bool) {
	return s.schedCache.get(ctx)
}
