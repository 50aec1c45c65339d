package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
)

type hostSource struct {
	now func() time.Time
}

// NewHostSource returns a Source reading the local machine through gopsutil.
func NewHostSource() Source {
	return &hostSource{now: time.Now}
}

func (s *hostSource) CPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no aggregate cpu sample returned")
	}

	return percents[0], nil
}

func (s *hostSource) LogicalCores(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

func (s *hostSource) LoadAverages(ctx context.Context) (LoadAverages, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return LoadAverages{}, err
	}

	return LoadAverages{avg.Load1, avg.Load5, avg.Load15}, nil
}

func (s *hostSource) Memory(ctx context.Context) (MemoryReading, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryReading{}, err
	}

	return MemoryReading{
		Total:       vm.Total,
		Used:        vm.Used,
		Available:   vm.Available,
		UsedPercent: vm.UsedPercent,
	}, nil
}

func (s *hostSource) DiskUsage(ctx context.Context, path string) (DiskReading, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskReading{}, err
	}

	return DiskReading{
		Total: usage.Total,
		Used:  usage.Used,
		Free:  usage.Free,
	}, nil
}

func (s *hostSource) NetworkCounters(ctx context.Context) (NetworkStats, error) {
	counters, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return NetworkStats{}, err
	}
	if len(counters) == 0 {
		return NetworkStats{}, fmt.Errorf("no network counters returned")
	}

	all := counters[0]

	return NetworkStats{
		BytesSent:       all.BytesSent,
		BytesReceived:   all.BytesRecv,
		PacketsSent:     all.PacketsSent,
		PacketsReceived: all.PacketsRecv,
	}, nil
}

func (s *hostSource) Uptime(ctx context.Context) (float64, error) {
	boot, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return 0, err
	}

	uptime := s.now().Sub(time.Unix(int64(boot), 0)).Seconds()
	if uptime < 0 {
		return 0, nil
	}

	return uptime, nil
}
