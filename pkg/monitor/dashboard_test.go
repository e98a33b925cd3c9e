package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourwise/pulse/pkg/metrics"
	"github.com/tourwise/pulse/pkg/probes"
)

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   Trend
	}{
		{"rising cpu", []float64{60, 65, 70, 75, 80}, TrendIncreasing},
		{"falling", []float64{80, 75, 70, 65, 60}, TrendDecreasing},
		{"flat", []float64{50, 50, 50, 50, 50}, TrendStable},
		{"noise within threshold", []float64{50, 50.3, 49.8, 50.2, 50.1}, TrendStable},
		{"single sample", []float64{42}, TrendStable},
		{"empty", nil, TrendStable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyTrend(tc.values))
		})
	}
}

func TestSystemHealthDashboard(t *testing.T) {
	sampler := &stubSampler{}
	svc := newTestService(t, Options{Resources: sampler})

	base := time.Now().Add(-5 * time.Minute)
	for i, v := range []float64{60, 65, 70, 75, 80} {
		sampler.set([]metrics.Metric{gaugeAt(probes.MetricCPUUsage, v, base.Add(time.Duration(i)*30*time.Second))})
		require.NoError(t, svc.collectSystemResources(context.Background()))
	}

	svc.Store().SetHealth(metrics.ServiceHealth{
		ServiceName: "payments",
		Status:      metrics.StateUnhealthy,
		LastCheck:   time.Now(),
	})

	dash := svc.SystemHealthDashboard()

	cpu, ok := dash.Resources[probes.MetricCPUUsage]
	require.True(t, ok)
	assert.Equal(t, 80.0, cpu.Value)
	assert.Equal(t, TrendIncreasing, cpu.Trend)

	require.Contains(t, dash.Services, "payments")
	assert.Equal(t, metrics.StateUnhealthy, dash.Services["payments"].Status)

	// 70, 75 and 80 breached the cpu threshold table during collection.
	require.NotEmpty(t, dash.RecentAlerts)
	assert.LessOrEqual(t, len(dash.RecentAlerts), 10)
	for _, ev := range dash.RecentAlerts {
		assert.Equal(t, probes.MetricCPUUsage, ev.MetricName)
	}
	assert.False(t, dash.GeneratedAt.IsZero())
}

func TestDashboardTrendUsesLastTenSamples(t *testing.T) {
	svc := newTestService(t, Options{})

	// Twenty rising samples followed by ten falling ones; only the falling
	// tail is inside the trend window.
	for i := 0; i < 20; i++ {
		svc.Store().Record(gaugeAt(probes.MetricMemoryUsage, float64(i), time.Now()))
	}
	for i := 0; i < 10; i++ {
		svc.Store().Record(gaugeAt(probes.MetricMemoryUsage, float64(60-5*i), time.Now()))
	}

	assert.Equal(t, TrendDecreasing, svc.resourceTrend(probes.MetricMemoryUsage))
}

func TestDashboardEmptyStore(t *testing.T) {
	svc := newTestService(t, Options{})
	dash := svc.SystemHealthDashboard()

	assert.Empty(t, dash.Resources)
	assert.Empty(t, dash.Services)
	assert.Empty(t, dash.RecentAlerts)
}
