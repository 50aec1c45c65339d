package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/vpsmonitor/vps-agent/internal/errors"
	"github.com/vpsmonitor/vps-agent/internal/logger"
)

const (
	// MinCPUWindow keeps the CPU percentage an instantaneous measurement
	// rather than a counter artifact.
	MinCPUWindow    = time.Second
	defaultDiskPath = "/"
)

// Collection stages, reported in ErrCollectMetrics data.
const (
	StageCPU     = "cpu"
	StageMemory  = "memory"
	StageDisk    = "disk"
	StageNetwork = "network"
	StageUptime  = "uptime"
)

// Collector assembles Snapshots from a Source. A collection attempt either
// yields a fully populated snapshot or an error, never a partial one.
type Collector struct {
	source     Source
	serverName string
	diskPath   string
	cpuWindow  time.Duration
	now        func() time.Time
}

type Option func(*Collector)

// WithSource replaces the gopsutil backed Source.
func WithSource(source Source) Option {
	return func(c *Collector) {
		c.source = source
	}
}

// WithDiskPath selects the filesystem reported in the disk section.
func WithDiskPath(path string) Option {
	return func(c *Collector) {
		c.diskPath = path
	}
}

// WithCPUWindow sets the CPU sampling window. Windows shorter than
// MinCPUWindow are raised to it.
func WithCPUWindow(window time.Duration) Option {
	return func(c *Collector) {
		c.cpuWindow = max(window, MinCPUWindow)
	}
}

// WithClock sets the clock used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

func NewCollector(serverName string, opts ...Option) *Collector {
	c := &Collector{
		serverName: serverName,
		diskPath:   defaultDiskPath,
		cpuWindow:  MinCPUWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.source == nil {
		c.source = NewHostSource()
	}

	return c
}

// Collect samples the host. It blocks for the CPU window; the snapshot is
// stamped once that window has closed.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	cpuStats, err := c.collectCPU(ctx)
	if err != nil {
		return nil, collectError(StageCPU, err)
	}
	timestamp := c.now().UTC()

	reading, err := c.source.Memory(ctx)
	if err != nil {
		return nil, collectError(StageMemory, err)
	}

	usage, err := c.source.DiskUsage(ctx, c.diskPath)
	if err != nil {
		return nil, collectError(StageDisk, err)
	}

	network, err := c.source.NetworkCounters(ctx)
	if err != nil {
		return nil, collectError(StageNetwork, err)
	}

	uptime, err := c.source.Uptime(ctx)
	if err != nil {
		return nil, collectError(StageUptime, err)
	}

	return &Snapshot{
		Timestamp:     timestamp,
		ServerName:    c.serverName,
		CPU:           cpuStats,
		Memory:        memoryStats(reading),
		Disk:          diskStats(usage),
		Network:       network,
		UptimeSeconds: max(uptime, 0),
		Status:        StatusOnline,
	}, nil
}

func (c *Collector) collectCPU(ctx context.Context) (CPUStats, error) {
	percent, err := c.source.CPUPercent(ctx, c.cpuWindow)
	if err != nil {
		return CPUStats{}, err
	}

	cores, err := c.source.LogicalCores(ctx)
	if err != nil {
		return CPUStats{}, err
	}
	if cores < 1 {
		return CPUStats{}, fmt.Errorf("invalid logical core count %d", cores)
	}

	loads, err := c.source.LoadAverages(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("Load averages unavailable, reporting zeros")
		loads = LoadAverages{}
	}

	return CPUStats{
		UtilizationPercent: clampPercent(percent),
		LogicalCoreCount:   cores,
		LoadAverages:       loads,
	}, nil
}

func memoryStats(r MemoryReading) MemoryStats {
	return MemoryStats{
		UtilizationPercent: clampPercent(r.UsedPercent),
		TotalBytes:         r.Total,
		UsedBytes:          min(r.Used, r.Total),
		AvailableBytes:     r.Available,
	}
}

func diskStats(r DiskReading) DiskStats {
	used := min(r.Used, r.Total)

	return DiskStats{
		UtilizationPercent: UsagePercent(used, r.Total),
		TotalBytes:         r.Total,
		UsedBytes:          used,
		FreeBytes:          r.Free,
	}
}

// UsagePercent returns used/total*100, or 0 for an empty total.
func UsagePercent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}

	return clampPercent(float64(used) / float64(total) * 100)
}

func clampPercent(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}

	return min(p, 100)
}

func collectError(stage string, err error) error {
	return errors.New().Wrap(errors.ErrCollectMetrics, err).WithData(stage)
}
