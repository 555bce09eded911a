package registry

import (
	"sort"
	"sync"

	"hostwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// Registry holds the device table for the current tick. It is rebuilt from
// scratch on every Ingest, so nothing survives from one tick to the next.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*model.Device
	logger  *logrus.Logger
}

func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		devices: make(map[string]*model.Device),
		logger:  logger,
	}
}

// Ingest rebuilds the table from a snapshot. Per-device bandwidth is not
// measured: the host-wide byte rate is split evenly across all devices.
func (r *Registry) Ingest(snapshot *model.Snapshot) {
	devices := make(map[string]*model.Device)

	for _, conn := range snapshot.Connections {
		if conn.State != model.ConnStateEstablished || conn.RemoteIP == "" {
			continue
		}

		key := model.DeviceKey(conn.RemoteIP, conn.RemotePort)
		if device, exists := devices[key]; exists {
			device.ConnectionCount++
			continue
		}

		protocol := conn.Protocol
		if protocol == "" {
			protocol = "unknown"
		}
		devices[key] = &model.Device{
			IP:              conn.RemoteIP,
			Port:            conn.RemotePort,
			Protocol:        protocol,
			ConnectionCount: 1,
			LastSeen:        snapshot.Timestamp,
		}
	}

	divisor := float64(len(devices))
	if divisor == 0 {
		divisor = 1
	}
	shareIn := snapshot.BytesInPerSec / divisor
	shareOut := snapshot.BytesOutPerSec / divisor
	for _, device := range devices {
		device.BytesIn = shareIn
		device.BytesOut = shareOut
	}

	r.mu.Lock()
	r.devices = devices
	r.mu.Unlock()

	r.logger.Debugf("[Registry] %d devices from %d connections | share in: %.2f B/s, out: %.2f B/s",
		len(devices), len(snapshot.Connections), shareIn, shareOut)
}

// Devices returns a copy of the current table ordered by IP, then port
func (r *Registry) Devices() []model.Device {
	r.mu.RLock()
	result := make([]model.Device, 0, len(r.devices))
	for _, device := range r.devices {
		result = append(result, *device)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].IP != result[j].IP {
			return result[i].IP < result[j].IP
		}
		return result[i].Port < result[j].Port
	})
	return result
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
