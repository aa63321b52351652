package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/hids/agent/internal/event"
)

// MetricsCollector publishes one METRIC_SNAPSHOT per poll with host-wide
// CPU, memory, disk, network, and uptime figures. It keeps no state between
// polls.
type MetricsCollector struct {
	logger *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	return &MetricsCollector{logger: logger}
}

func (c *MetricsCollector) Name() string { return "metrics" }

// Collect builds one snapshot. CPU usage is required; every other figure is
// best-effort and left zero when unreadable.
func (c *MetricsCollector) Collect(ctx context.Context) ([]*event.Event, error) {
	snap := &event.MetricSnapshot{}

	overall, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("collector: read cpu usage: %w", err)
	}
	if len(overall) > 0 {
		snap.CPU.Percent = overall[0]
	}
	if perCPU, err := cpu.PercentWithContext(ctx, 0, true); err == nil {
		snap.CPU.PerCPU = perCPU
	}
	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPU.Count = count
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.CPU.Load1 = avg.Load1
		snap.CPU.Load5 = avg.Load5
		snap.CPU.Load15 = avg.Load15
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.Memory.Total = vm.Total
		snap.Memory.Available = vm.Available
		snap.Memory.Used = vm.Used
		snap.Memory.Percent = vm.UsedPercent
	} else {
		c.logger.Warn("cannot read virtual memory", slog.Any("error", err))
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		snap.Memory.SwapTotal = swap.Total
		snap.Memory.SwapUsed = swap.Used
		snap.Memory.SwapPercent = swap.UsedPercent
	}

	if parts, err := disk.PartitionsWithContext(ctx, false); err == nil {
		for _, part := range parts {
			usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
			if err != nil {
				continue
			}
			snap.Disk = append(snap.Disk, event.DiskMetrics{
				Path:    part.Mountpoint,
				Total:   usage.Total,
				Used:    usage.Used,
				Free:    usage.Free,
				Percent: usage.UsedPercent,
			})
		}
	}

	if totals, err := gnet.IOCountersWithContext(ctx, false); err == nil && len(totals) > 0 {
		snap.Network.BytesSent = totals[0].BytesSent
		snap.Network.BytesRecv = totals[0].BytesRecv
		snap.Network.PacketsSent = totals[0].PacketsSent
		snap.Network.PacketsRecv = totals[0].PacketsRecv
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.System.Hostname = info.Hostname
		snap.System.BootTime = int64(info.BootTime)
		snap.System.UptimeS = info.Uptime
	}

	return []*event.Event{{
		Type:      event.TypeMetricSnapshot,
		Timestamp: time.Now(),
		Metric:    snap,
	}}, nil
}
