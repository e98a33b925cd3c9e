package probes

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"

	"github.com/tourwise/pulse/pkg/logging"
	"github.com/tourwise/pulse/pkg/metrics"
)

// Resource metric names recorded by the resource probe. The alert threshold
// table and the dashboard key off these.
const (
	MetricCPUUsage     = "cpu_usage_percent"
	MetricMemoryUsage  = "memory_usage_percent"
	MetricDiskUsage    = "disk_usage_percent"
	MetricNetBytesSent = "network_bytes_sent_total"
	MetricNetBytesRecv = "network_bytes_recv_total"
)

// ResourceProbe samples OS counters synchronously. Unlike the service probes
// it produces raw gauges with no health classification, and a failed sampler
// only drops that one gauge from the batch. The sampler functions are fields
// so tests can substitute deterministic values.
type ResourceProbe struct {
	DiskPath string

	cpuPercent func(ctx context.Context) ([]float64, error)
	memUsage   func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	diskUsage  func(ctx context.Context, path string) (*disk.UsageStat, error)
	netIO      func(ctx context.Context) ([]gopsnet.IOCountersStat, error)

	logger *logging.StructuredLogger
}

// NewResourceProbe creates a resource probe sampling the root filesystem.
func NewResourceProbe(logger *logging.StructuredLogger) *ResourceProbe {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ResourceProbe{
		DiskPath: "/",
		cpuPercent: func(ctx context.Context) ([]float64, error) {
			return cpu.PercentWithContext(ctx, 0, false)
		},
		memUsage: mem.VirtualMemoryWithContext,
		diskUsage: func(ctx context.Context, path string) (*disk.UsageStat, error) {
			return disk.UsageWithContext(ctx, path)
		},
		netIO: func(ctx context.Context) ([]gopsnet.IOCountersStat, error) {
			return gopsnet.IOCountersWithContext(ctx, false)
		},
		logger: logger.WithComponent("resource_probe"),
	}
}

// Sample collects the current resource gauges.
func (p *ResourceProbe) Sample(ctx context.Context) []metrics.Metric {
	now := time.Now()
	var out []metrics.Metric

	gauge := func(name string, value float64, desc string) {
		out = append(out, metrics.Metric{
			Name:        name,
			Value:       value,
			Kind:        metrics.KindGauge,
			Timestamp:   now,
			Description: desc,
		})
	}

	if pct, err := p.cpuPercent(ctx); err != nil {
		p.logger.Warn("cpu sample failed", "error", err.Error())
	} else if len(pct) > 0 {
		gauge(MetricCPUUsage, pct[0], "CPU utilization percentage")
	}

	if vm, err := p.memUsage(ctx); err != nil {
		p.logger.Warn("memory sample failed", "error", err.Error())
	} else {
		gauge(MetricMemoryUsage, vm.UsedPercent, "Memory utilization percentage")
	}

	if du, err := p.diskUsage(ctx, p.DiskPath); err != nil {
		p.logger.Warn("disk sample failed", "path", p.DiskPath, "error", err.Error())
	} else {
		gauge(MetricDiskUsage, du.UsedPercent, "Disk utilization percentage")
	}

	if counters, err := p.netIO(ctx); err != nil {
		p.logger.Warn("network sample failed", "error", err.Error())
	} else if len(counters) > 0 {
		m := metrics.Metric{
			Name:        MetricNetBytesSent,
			Value:       float64(counters[0].BytesSent),
			Kind:        metrics.KindCounter,
			Timestamp:   now,
			Description: "Total bytes sent on all interfaces",
		}
		out = append(out, m)
		m.Name = MetricNetBytesRecv
		m.Value = float64(counters[0].BytesRecv)
		m.Description = "Total bytes received on all interfaces"
		out = append(out, m)
	}

	return out
}
