package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourwise/pulse/pkg/alerts"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefaultIntervals(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30*time.Second, cfg.Intervals.SystemResources)
	assert.Equal(t, 60*time.Second, cfg.Intervals.ExternalServices)
	assert.Equal(t, 120*time.Second, cfg.Intervals.Database)
	assert.Equal(t, 300*time.Second, cfg.Intervals.CallAnalytics)
	assert.Equal(t, 300*time.Second, cfg.Intervals.SchedulingAnalytics)
	assert.Equal(t, 60*time.Second, cfg.Intervals.AlertDispatch)
}

func TestDefaultThresholdTiers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, alerts.Threshold{Warning: 70, Critical: 85}, cfg.Thresholds["cpu_usage_percent"])
	assert.Equal(t, alerts.Threshold{Warning: 75, Critical: 90}, cfg.Thresholds["memory_usage_percent"])
	assert.Equal(t, alerts.Threshold{Warning: 80, Critical: 95}, cfg.Thresholds["disk_usage_percent"])
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.Ops.ListenAddr)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	body := `
ops:
  listen_addr: ":9999"
external_services:
  - name: payments
    url: https://payments.internal/health
thresholds:
  cpu_usage_percent:
    warning: 60
    critical: 80
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Ops.ListenAddr)
	require.Len(t, cfg.ExternalServices, 1)
	assert.Equal(t, "payments", cfg.ExternalServices[0].Name)
	assert.Equal(t, alerts.Threshold{Warning: 60, Critical: 80}, cfg.Thresholds["cpu_usage_percent"])
	// Untouched defaults survive the overlay.
	assert.Equal(t, 30*time.Second, cfg.Intervals.SystemResources)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PULSE_OPS_ADDR", ":7070")
	t.Setenv("PULSE_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("PULSE_ALERT_WEBHOOK_URL", "https://hooks.internal/alerts")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Ops.ListenAddr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Address)
	assert.Equal(t, "https://hooks.internal/alerts", cfg.Alerting.WebhookURL)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Intervals.Database = 0 }},
		{"negative probe timeout", func(c *Config) { c.ProbeTimeout = -time.Second }},
		{"inverted threshold", func(c *Config) {
			c.Thresholds["cpu_usage_percent"] = alerts.Threshold{Warning: 90, Critical: 70}
		}},
		{"nameless target", func(c *Config) {
			c.ExternalServices = []ServiceTarget{{URL: "https://x"}}
		}},
		{"inverted business hours", func(c *Config) {
			c.Scheduling.OpenHour = 18
			c.Scheduling.CloseHour = 9
		}},
		{"redis without address", func(c *Config) { c.Redis.Enabled = true }},
		{"database without dsn", func(c *Config) { c.Database.Enabled = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ops:\n  listen_addr: \":1111\"\n"), 0o644))

	var reloads atomic.Int32
	var lastAddr atomic.Value
	w, err := NewWatcher(path, nil, func(c *Config) {
		lastAddr.Store(c.Ops.ListenAddr)
		reloads.Add(1)
	})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("ops:\n  listen_addr: \":2222\"\n"), 0o644))

	require.Eventually(t, func() bool {
		return reloads.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ":2222", lastAddr.Load())
}

func TestWatcherKeepsPreviousConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ops:\n  listen_addr: \":1111\"\n"), 0o644))

	var reloads atomic.Int32
	w, err := NewWatcher(path, nil, func(c *Config) { reloads.Add(1) })
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// Invalid yaml must not reach the callback.
	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ops:\n  listen_addr: \":1111\"\n"), 0o644))

	w, err := NewWatcher(path, nil, func(*Config) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
