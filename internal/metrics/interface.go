package metrics

import (
	"context"
	"time"
)

// Source issues the OS queries a snapshot is built from. The production
// implementation is backed by gopsutil; tests substitute canned readings.
type Source interface {
	// CPUPercent blocks for window and returns the aggregate utilization
	// over it.
	CPUPercent(ctx context.Context, window time.Duration) (float64, error)
	LogicalCores(ctx context.Context) (int, error)
	LoadAverages(ctx context.Context) (LoadAverages, error)
	Memory(ctx context.Context) (MemoryReading, error)
	DiskUsage(ctx context.Context, path string) (DiskReading, error)
	// NetworkCounters returns counters summed over all interfaces since boot.
	NetworkCounters(ctx context.Context) (NetworkStats, error)
	// Uptime returns seconds elapsed since boot.
	Uptime(ctx context.Context) (float64, error)
}

// MemoryReading is a point-in-time view of virtual memory.
type MemoryReading struct {
	Total       uint64
	Used        uint64
	Available   uint64
	UsedPercent float64
}

// DiskReading is a point-in-time view of one filesystem.
type DiskReading struct {
	Total uint64
	Used  uint64
	Free  uint64
}
