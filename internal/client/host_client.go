package client

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"hostwatch/internal/model"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
)

// HostClient reads telemetry of the local host through gopsutil
type HostClient struct {
	connKind string
}

func NewHostClient() *HostClient {
	return &HostClient{connKind: "inet"}
}

// Connections lists TCP/UDP sockets over IPv4 and IPv6
func (c *HostClient) Connections(ctx context.Context) ([]model.Connection, error) {
	stats, err := gnet.ConnectionsWithContext(ctx, c.connKind)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	conns := make([]model.Connection, 0, len(stats))
	for _, s := range stats {
		conns = append(conns, model.Connection{
			Protocol:   protocolName(s.Family, s.Type),
			State:      s.Status,
			LocalIP:    s.Laddr.IP,
			LocalPort:  s.Laddr.Port,
			RemoteIP:   s.Raddr.IP,
			RemotePort: s.Raddr.Port,
		})
	}
	return conns, nil
}

// InterfaceCounters returns cumulative byte counters per interface
func (c *HostClient) InterfaceCounters(ctx context.Context) ([]model.InterfaceCounters, error) {
	stats, err := gnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read interface counters: %w", err)
	}

	counters := make([]model.InterfaceCounters, 0, len(stats))
	for _, s := range stats {
		counters = append(counters, model.InterfaceCounters{
			Name:      s.Name,
			BytesRecv: s.BytesRecv,
			BytesSent: s.BytesSent,
		})
	}
	return counters, nil
}

// SystemMetrics returns CPU load since the previous call, memory use and uptime
func (c *HostClient) SystemMetrics(ctx context.Context) (model.SystemMetrics, error) {
	load, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return model.SystemMetrics{}, fmt.Errorf("failed to read cpu load: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return model.SystemMetrics{}, fmt.Errorf("failed to read memory: %w", err)
	}

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return model.SystemMetrics{}, fmt.Errorf("failed to read uptime: %w", err)
	}

	metrics := model.SystemMetrics{
		MemoryPercent: vm.UsedPercent,
		Uptime:        time.Duration(uptime) * time.Second,
	}
	if len(load) > 0 {
		metrics.CPUPercent = load[0]
	}
	return metrics, nil
}

func protocolName(family, sockType uint32) string {
	var proto string
	switch sockType {
	case syscall.SOCK_STREAM:
		proto = "tcp"
	case syscall.SOCK_DGRAM:
		proto = "udp"
	default:
		return "unknown"
	}
	if family == syscall.AF_INET6 {
		proto += "6"
	}
	return proto
}
