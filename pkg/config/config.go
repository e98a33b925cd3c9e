// Package config loads and validates service configuration from YAML with
// environment-variable overrides, and supports hot reload of the file so the
// alert threshold table can change without a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/tourwise/pulse/pkg/alerts"
	"github.com/tourwise/pulse/pkg/logging"
	"github.com/tourwise/pulse/pkg/metrics"
)

// Config holds all configuration for the monitoring and scheduling core.
type Config struct {
	Logging    logging.Config   `yaml:"logging"`
	Ops        OpsConfig        `yaml:"ops"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Intervals  IntervalsConfig  `yaml:"intervals"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Scheduling SchedulingConfig `yaml:"scheduling"`

	// Thresholds maps a metric name to its two-tier alert boundary.
	Thresholds map[string]alerts.Threshold `yaml:"thresholds"`

	// ExternalServices are the endpoints polled by the service health loop.
	ExternalServices []ServiceTarget `yaml:"external_services"`

	// ProbeTimeout bounds any single health check.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// AnalyticsTTL is how long a 24h analytics rollup stays fresh.
	AnalyticsTTL time.Duration `yaml:"analytics_ttl"`
}

// OpsConfig configures the operational HTTP surface.
type OpsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// RedisConfig configures the optional durable cache.
type RedisConfig struct {
	Enabled                  bool `yaml:"enabled"`
	metrics.RedisCacheConfig `yaml:",inline"`
}

// DatabaseConfig configures the database probed by the database loop and
// used for appointment history lookups.
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// IntervalsConfig fixes the cadence of each polling loop. Intervals are
// deliberately not adaptive: expensive aggregation polls run less often than
// cheap local sampling.
type IntervalsConfig struct {
	SystemResources     time.Duration `yaml:"system_resources"`
	ExternalServices    time.Duration `yaml:"external_services"`
	Database            time.Duration `yaml:"database"`
	CallAnalytics       time.Duration `yaml:"call_analytics"`
	SchedulingAnalytics time.Duration `yaml:"scheduling_analytics"`
	AlertDispatch       time.Duration `yaml:"alert_dispatch"`
}

// AlertingConfig configures alert notification delivery.
type AlertingConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SchedulingConfig configures the appointment slot optimizer.
type SchedulingConfig struct {
	// Business operating hours in the reference timezone, 24h clock.
	OpenHour  int `yaml:"open_hour"`
	CloseHour int `yaml:"close_hour"`

	Agents []AgentConfig `yaml:"agents"`
}

// AgentConfig declares one bookable agent.
type AgentConfig struct {
	ID              string   `yaml:"id"`
	Specializations []string `yaml:"specializations"`
	DailyCapacity   int      `yaml:"daily_capacity"`
}

// ServiceTarget names one external dependency to poll.
type ServiceTarget struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: logging.Config{
			Level:       logging.LevelInfo,
			Format:      "json",
			ServiceName: "pulse",
		},
		Ops: OpsConfig{ListenAddr: ":8090"},
		Intervals: IntervalsConfig{
			SystemResources:     30 * time.Second,
			ExternalServices:    60 * time.Second,
			Database:            120 * time.Second,
			CallAnalytics:       300 * time.Second,
			SchedulingAnalytics: 300 * time.Second,
			AlertDispatch:       60 * time.Second,
		},
		Thresholds: map[string]alerts.Threshold{
			"cpu_usage_percent":    {Warning: 70, Critical: 85},
			"memory_usage_percent": {Warning: 75, Critical: 90},
			"disk_usage_percent":   {Warning: 80, Critical: 95},
		},
		Alerting:     AlertingConfig{Timeout: 10 * time.Second},
		Scheduling:   SchedulingConfig{OpenHour: 9, CloseHour: 18},
		ProbeTimeout: 10 * time.Second,
		AnalyticsTTL: 10 * time.Minute,
	}
}

// Load reads configuration from path, layered over the defaults, then applies
// environment overrides and validates the result. A missing file is not an
// error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PULSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = logging.LogLevel(v)
	}
	if v := os.Getenv("PULSE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("PULSE_OPS_ADDR"); v != "" {
		c.Ops.ListenAddr = v
	}
	if v := os.Getenv("PULSE_REDIS_ADDR"); v != "" {
		c.Redis.Enabled = true
		c.Redis.Address = v
	}
	if v := os.Getenv("PULSE_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("PULSE_DATABASE_DSN"); v != "" {
		c.Database.Enabled = true
		c.Database.DSN = v
	}
	if v := os.Getenv("PULSE_ALERT_WEBHOOK_URL"); v != "" {
		c.Alerting.WebhookURL = v
	}
}

// Validate rejects configurations the loops cannot safely run with.
func (c *Config) Validate() error {
	intervals := map[string]time.Duration{
		"system_resources":     c.Intervals.SystemResources,
		"external_services":    c.Intervals.ExternalServices,
		"database":             c.Intervals.Database,
		"call_analytics":       c.Intervals.CallAnalytics,
		"scheduling_analytics": c.Intervals.SchedulingAnalytics,
		"alert_dispatch":       c.Intervals.AlertDispatch,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("interval %s must be positive, got %v", name, d)
		}
	}

	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %v", c.ProbeTimeout)
	}
	if c.AnalyticsTTL <= 0 {
		return fmt.Errorf("analytics_ttl must be positive, got %v", c.AnalyticsTTL)
	}

	for name, th := range c.Thresholds {
		if th.Warning >= th.Critical {
			return fmt.Errorf("threshold %s: warning %.1f must be below critical %.1f", name, th.Warning, th.Critical)
		}
	}

	for i, svc := range c.ExternalServices {
		if svc.Name == "" || svc.URL == "" {
			return fmt.Errorf("external_services[%d]: name and url are required", i)
		}
	}

	if c.Scheduling.OpenHour < 0 || c.Scheduling.CloseHour > 24 ||
		c.Scheduling.OpenHour >= c.Scheduling.CloseHour {
		return fmt.Errorf("scheduling hours invalid: open %d, close %d",
			c.Scheduling.OpenHour, c.Scheduling.CloseHour)
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis enabled but address is empty")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database enabled but dsn is empty")
	}
	return nil
}
