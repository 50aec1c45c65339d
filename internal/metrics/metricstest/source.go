// Package metricstest provides a canned metrics.Source for tests.
package metricstest

import (
	"context"
	"time"

	"github.com/vpsmonitor/vps-agent/internal/metrics"
)

// Source returns fixed readings. A non-nil *Err field makes the matching
// query fail.
type Source struct {
	CPU        float64
	Cores      int
	Loads      metrics.LoadAverages
	Mem        metrics.MemoryReading
	Disk       metrics.DiskReading
	Net        metrics.NetworkStats
	UptimeSecs float64

	CPUErr    error
	CoresErr  error
	LoadErr   error
	MemErr    error
	DiskErr   error
	NetErr    error
	UptimeErr error

	// Recorded arguments of the last call.
	Window   time.Duration
	DiskPath string
}

// Healthy returns a Source describing an ordinary 4 core, 8 GiB host.
func Healthy() *Source {
	const gib = 1 << 30

	return &Source{
		CPU:        12.5,
		Cores:      4,
		Loads:      metrics.LoadAverages{0.5, 0.4, 0.3},
		Mem:        metrics.MemoryReading{Total: 8 * gib, Used: 2 * gib, Available: 6 * gib, UsedPercent: 25},
		Disk:       metrics.DiskReading{Total: 100 * gib, Used: 40 * gib, Free: 60 * gib},
		Net:        metrics.NetworkStats{BytesSent: 1000, BytesReceived: 2000, PacketsSent: 10, PacketsReceived: 20},
		UptimeSecs: 3600,
	}
}

func (s *Source) CPUPercent(_ context.Context, window time.Duration) (float64, error) {
	s.Window = window
	return s.CPU, s.CPUErr
}

func (s *Source) LogicalCores(context.Context) (int, error) {
	return s.Cores, s.CoresErr
}

func (s *Source) LoadAverages(context.Context) (metrics.LoadAverages, error) {
	return s.Loads, s.LoadErr
}

func (s *Source) Memory(context.Context) (metrics.MemoryReading, error) {
	return s.Mem, s.MemErr
}

func (s *Source) DiskUsage(_ context.Context, path string) (metrics.DiskReading, error) {
	s.DiskPath = path
	return s.Disk, s.DiskErr
}

func (s *Source) NetworkCounters(context.Context) (metrics.NetworkStats, error) {
	return s.Net, s.NetErr
}

func (s *Source) Uptime(context.Context) (float64, error) {
	return s.UptimeSecs, s.UptimeErr
}
