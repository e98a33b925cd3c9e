package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourwise/pulse/pkg/alerts"
	"github.com/tourwise/pulse/pkg/config"
	"github.com/tourwise/pulse/pkg/metrics"
	"github.com/tourwise/pulse/pkg/probes"
)

type stubSampler struct {
	mu      sync.Mutex
	samples []metrics.Metric
}

func (s *stubSampler) Sample(context.Context) []metrics.Metric {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]metrics.Metric, len(s.samples))
	copy(out, s.samples)
	return out
}

func (s *stubSampler) set(samples []metrics.Metric) {
	s.mu.Lock()
	s.samples = samples
	s.mu.Unlock()
}

func gaugeAt(name string, value float64, ts time.Time) metrics.Metric {
	return metrics.Metric{Name: name, Value: value, Kind: metrics.KindGauge, Timestamp: ts}
}

type stubCallSource struct {
	calls atomic.Int64
	err   error
}

func (s *stubCallSource) CallSnapshot(context.Context) (*CallAnalyticsSnapshot, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &CallAnalyticsSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowHours: 24,
		TotalCalls:  42,
	}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]alerts.Event
	err     error
}

func (r *recordingSink) Notify(_ context.Context, events []alerts.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, events)
	return nil
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.ProbeTimeout = 2 * time.Second
	return NewService(cfg, nil, opts)
}

func TestCollectSystemResourcesRecordsAndAlerts(t *testing.T) {
	sampler := &stubSampler{}
	sampler.set([]metrics.Metric{
		gaugeAt(probes.MetricCPUUsage, 92, time.Now()),
		gaugeAt(probes.MetricMemoryUsage, 40, time.Now()),
	})
	svc := newTestService(t, Options{Resources: sampler})

	require.NoError(t, svc.collectSystemResources(context.Background()))

	latest, ok := svc.Store().Latest(probes.MetricCPUUsage)
	require.True(t, ok)
	assert.Equal(t, 92.0, latest.Value)

	recent := svc.alertLog.Recent(10)
	require.Len(t, recent, 1, "only the CPU breach should alert")
	assert.Equal(t, alerts.SeverityCritical, recent[0].Severity)
	assert.Equal(t, probes.MetricCPUUsage, recent[0].MetricName)
}

func TestCollectSystemResourcesEmptySampleIsError(t *testing.T) {
	svc := newTestService(t, Options{Resources: &stubSampler{}})
	assert.Error(t, svc.collectSystemResources(context.Background()))
}

func TestUnhealthyServiceEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	probe := probes.NewHTTPProbe("payments", srv.URL, time.Second, nil)
	svc := newTestService(t, Options{ServiceProbes: []probes.Probe{probe}})

	require.NoError(t, svc.checkExternalServices(context.Background()))

	h, ok := svc.Store().Health("payments")
	require.True(t, ok)
	assert.Equal(t, metrics.StateUnhealthy, h.Status)
	assert.Equal(t, 100.0, h.ErrorRatePct)

	rt := svc.Store().Query("payments_response_time_ms", 10)
	require.Len(t, rt, 1)
	assert.Equal(t, metrics.KindTimer, rt[0].Kind)
}

func TestHealthyServiceEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	probe := probes.NewHTTPProbe("booking", srv.URL, time.Second, nil)
	svc := newTestService(t, Options{ServiceProbes: []probes.Probe{probe}})

	require.NoError(t, svc.checkExternalServices(context.Background()))

	h, ok := svc.Store().Health("booking")
	require.True(t, ok)
	assert.Equal(t, metrics.StateHealthy, h.Status)
	assert.Equal(t, 100.0, h.UptimePct)
}

func TestAnalyticsRefreshAndStaleness(t *testing.T) {
	source := &stubCallSource{}
	svc := newTestService(t, Options{CallAnalytics: source})
	svc.callCache.ttl = 30 * time.Millisecond

	_, ok := svc.CallAnalyticsDashboard(context.Background())
	assert.False(t, ok, "nothing cached before the first refresh")

	require.NoError(t, svc.refreshCallAnalytics(context.Background()))

	snap, ok := svc.CallAnalyticsDashboard(context.Background())
	require.True(t, ok)
	assert.Equal(t, 42, snap.TotalCalls)

	time.Sleep(50 * time.Millisecond)
	_, ok = svc.CallAnalyticsDashboard(context.Background())
	assert.False(t, ok, "stale snapshot must report absent")
}

func TestAnalyticsRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	source := &stubCallSource{}
	svc := newTestService(t, Options{CallAnalytics: source})

	require.NoError(t, svc.refreshCallAnalytics(context.Background()))

	source.err = errors.New("warehouse timeout")
	assert.Error(t, svc.refreshCallAnalytics(context.Background()))

	snap, ok := svc.CallAnalyticsDashboard(context.Background())
	require.True(t, ok, "a failed refresh must not evict the last good snapshot")
	assert.Equal(t, 42, snap.TotalCalls)
}

func TestDispatchAlerts(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, Options{AlertSink: sink})

	svc.evaluateThreshold(probes.MetricCPUUsage, 95)
	svc.evaluateThreshold(probes.MetricMemoryUsage, 80)

	require.NoError(t, svc.dispatchAlerts(context.Background()))
	sink.mu.Lock()
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 2)
	sink.mu.Unlock()

	// A second tick with nothing new delivers nothing.
	require.NoError(t, svc.dispatchAlerts(context.Background()))
	sink.mu.Lock()
	assert.Len(t, sink.batches, 1)
	sink.mu.Unlock()
}

func TestDispatchAlertsFailureKeepsEventsQueued(t *testing.T) {
	sink := &recordingSink{err: errors.New("webhook 500")}
	svc := newTestService(t, Options{AlertSink: sink})

	svc.evaluateThreshold(probes.MetricDiskUsage, 97)
	assert.Error(t, svc.dispatchAlerts(context.Background()))

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	require.NoError(t, svc.dispatchAlerts(context.Background()))

	sink.mu.Lock()
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 1)
	sink.mu.Unlock()
}

func TestRecordCustomMetric(t *testing.T) {
	svc := newTestService(t, Options{})

	err := svc.RecordCustomMetric("checkout_latency", 182.4, metrics.KindTimer,
		map[string]string{"region": "eu"}, "checkout round trip")
	require.NoError(t, err)

	got := svc.CustomMetrics("checkout_latency", 10)
	require.Len(t, got, 1)
	assert.Equal(t, 182.4, got[0].Value)
	assert.Equal(t, "eu", got[0].Labels["region"])
}

func TestRecordCustomMetricValidation(t *testing.T) {
	svc := newTestService(t, Options{})

	err := svc.RecordCustomMetric("x", 1, metrics.Kind("speedometer"), nil, "")
	assert.ErrorIs(t, err, metrics.ErrUnknownKind)

	err = svc.RecordCustomMetric("", 1, metrics.KindGauge, nil, "")
	assert.Error(t, err)
}

func TestCustomMetricsUnknownNameIsEmpty(t *testing.T) {
	svc := newTestService(t, Options{})
	assert.Empty(t, svc.CustomMetrics("never_recorded", 10))
}

func TestLoopLifecycle(t *testing.T) {
	source := &stubCallSource{}
	cfg := config.Default()
	cfg.Intervals.CallAnalytics = 10 * time.Millisecond
	cfg.Intervals.AlertDispatch = 10 * time.Millisecond
	svc := NewService(cfg, nil, Options{CallAnalytics: source})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	require.Eventually(t, func() bool {
		return source.calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond, "loop must tick repeatedly")

	svc.Stop()
	after := source.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, source.calls.Load(), "no ticks after Stop")
}

func TestLoopBacksOffAfterFailure(t *testing.T) {
	source := &stubCallSource{err: errors.New("permanently down")}
	cfg := config.Default()
	cfg.Intervals.CallAnalytics = 20 * time.Millisecond
	svc := NewService(cfg, nil, Options{CallAnalytics: source})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	time.Sleep(130 * time.Millisecond)
	svc.Stop()

	// With 2x backoff (40ms per retry) roughly 3-4 ticks fit in the window;
	// without backoff there would be at least 6.
	calls := source.calls.Load()
	assert.GreaterOrEqual(t, calls, int64(2))
	assert.Less(t, calls, int64(6))
}

func TestSetThresholdsAppliesLive(t *testing.T) {
	svc := newTestService(t, Options{})

	svc.evaluateThreshold("checkout_errors_per_min", 50)
	assert.Empty(t, svc.alertLog.Recent(10), "no threshold configured yet")

	svc.SetThresholds(map[string]alerts.Threshold{
		"checkout_errors_per_min": {Warning: 10, Critical: 40},
	})
	svc.evaluateThreshold("checkout_errors_per_min", 50)

	recent := svc.alertLog.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, alerts.SeverityCritical, recent[0].Severity)
}

func TestThresholdReloadDuringCollectionIsSafe(t *testing.T) {
	sampler := &stubSampler{}
	sampler.set([]metrics.Metric{gaugeAt(probes.MetricCPUUsage, 92, time.Now())})
	svc := newTestService(t, Options{Resources: sampler})

	// A hot reload swapping the threshold table must never race with the
	// resource loop evaluating against it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			svc.SetThresholds(map[string]alerts.Threshold{
				probes.MetricCPUUsage: {Warning: 70, Critical: 85 + float64(i%5)},
			})
		}
	}()
	for i := 0; i < 200; i++ {
		require.NoError(t, svc.collectSystemResources(context.Background()))
	}
	<-done

	assert.NotEmpty(t, svc.alertLog.Recent(10))
}

func TestTickPanicIsContained(t *testing.T) {
	svc := newTestService(t, Options{})
	err := svc.safeTick(context.Background(), func(context.Context) error {
		panic("probe exploded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe exploded")
}

func TestStartIsIdempotentAndStopWithoutStartIsSafe(t *testing.T) {
	svc := newTestService(t, Options{})
	svc.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	svc.Start(ctx)
	svc.Stop()
	svc.Stop()
}
