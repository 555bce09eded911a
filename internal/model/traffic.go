package model

import (
	"fmt"
	"time"
)

// ConnStateEstablished is the only connection state the registry tracks
const ConnStateEstablished = "ESTABLISHED"

// Connection is one socket as reported by the telemetry provider
type Connection struct {
	Protocol   string `json:"protocol"`
	State      string `json:"state"`
	LocalIP    string `json:"local_ip"`
	LocalPort  uint32 `json:"local_port"`
	RemoteIP   string `json:"remote_ip"`
	RemotePort uint32 `json:"remote_port"`
}

// InterfaceCounters are cumulative byte counters of one network interface
type InterfaceCounters struct {
	Name      string `json:"name"`
	BytesRecv uint64 `json:"bytes_recv"`
	BytesSent uint64 `json:"bytes_sent"`
}

// Snapshot is what the sampler produces once per tick
type Snapshot struct {
	Timestamp   time.Time
	Connections []Connection
	Interface   string
	// Byte rates over the two-point measurement, bytes per second
	BytesInPerSec  float64
	BytesOutPerSec float64
}

// Sample converts the snapshot byte rates into a Kbps traffic sample
func (s *Snapshot) Sample() TrafficSample {
	return TrafficSample{
		Incoming: BytesToKbps(s.BytesInPerSec),
		Outgoing: BytesToKbps(s.BytesOutPerSec),
	}
}

// TrafficSample is one (incoming, outgoing) pair in Kbps
type TrafficSample struct {
	Incoming float64 `json:"incoming"`
	Outgoing float64 `json:"outgoing"`
}

// Device is a remote endpoint seen through an established connection.
// BytesIn/BytesOut are imputed shares of the host total, in bytes per second.
type Device struct {
	IP              string    `json:"ip"`
	Port            uint32    `json:"port"`
	Protocol        string    `json:"protocol"`
	BytesIn         float64   `json:"bytes_in"`
	BytesOut        float64   `json:"bytes_out"`
	ConnectionCount int       `json:"connection_count"`
	LastSeen        time.Time `json:"last_seen"`
}

// Key identifies a device inside one tick
func (d Device) Key() string {
	return DeviceKey(d.IP, d.Port)
}

func DeviceKey(ip string, port uint32) string {
	return fmt.Sprintf("%s:%d", ip, port)
}

// SystemMetrics is the host health snapshot
type SystemMetrics struct {
	CPUPercent    float64
	MemoryPercent float64
	Uptime        time.Duration
}

// BytesToKbps converts a byte count to kilobits
func BytesToKbps(b float64) float64 {
	return b * 8 / 1000
}
