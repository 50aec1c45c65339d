package metrics

import "time"

// StatusOnline is the only status a produced snapshot carries.
const StatusOnline = "online"

// Snapshot is one complete sample of host state. It is the JSON body posted
// to the collector; field names are part of the wire contract.
type Snapshot struct {
	Timestamp     time.Time    `json:"timestamp"`
	ServerName    string       `json:"server_name"`
	CPU           CPUStats     `json:"cpu"`
	Memory        MemoryStats  `json:"memory"`
	Disk          DiskStats    `json:"disk"`
	Network       NetworkStats `json:"network"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Status        string       `json:"status"`
}

type CPUStats struct {
	UtilizationPercent float64      `json:"utilization_percent"`
	LogicalCoreCount   int          `json:"logical_core_count"`
	LoadAverages       LoadAverages `json:"load_averages"`
}

// LoadAverages holds the 1, 5 and 15 minute load averages and encodes as a
// JSON array.
type LoadAverages [3]float64

type MemoryStats struct {
	UtilizationPercent float64 `json:"utilization_percent"`
	TotalBytes         uint64  `json:"total_bytes"`
	UsedBytes          uint64  `json:"used_bytes"`
	AvailableBytes     uint64  `json:"available_bytes"`
}

type DiskStats struct {
	UtilizationPercent float64 `json:"utilization_percent"`
	TotalBytes         uint64  `json:"total_bytes"`
	UsedBytes          uint64  `json:"used_bytes"`
	FreeBytes          uint64  `json:"free_bytes"`
}

type NetworkStats struct {
	BytesSent       uint64 `json:"bytes_sent"`
	BytesReceived   uint64 `json:"bytes_received"`
	PacketsSent     uint64 `json:"packets_sent"`
	PacketsReceived uint64 `json:"packets_received"`
}
