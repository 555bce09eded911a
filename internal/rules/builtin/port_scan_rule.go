package builtin

import (
	"fmt"
	"sort"

	"hostwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// DefaultAttackThreshold is the per-IP connection count that must be exceeded
const DefaultAttackThreshold = 10

// PortScanRule flags remote IPs holding too many connections in one tick. It
// only sees the current device table, so bursts spread across ticks go
// unnoticed.
type PortScanRule struct {
	name      string
	threshold int
	logger    *logrus.Logger
}

func NewPortScanRule(threshold int, logger *logrus.Logger) *PortScanRule {
	if threshold <= 0 {
		threshold = DefaultAttackThreshold
	}
	return &PortScanRule{
		name:      "port_scan",
		threshold: threshold,
		logger:    logger,
	}
}

func (r *PortScanRule) Name() string {
	return r.name
}

func (r *PortScanRule) Threshold() int {
	return r.threshold
}

// Scan sums connections per IP across ports. Every offending IP yields one
// attack record and one mirrored alert, in IP order.
func (r *PortScanRule) Scan(devices []model.Device) (attacks, alerts []model.Finding) {
	counts := ConnectionsPerIP(devices)

	ips := make([]string, 0, len(counts))
	for ip, count := range counts {
		r.logger.Debugf("[Port Scan] ip: %s, connections: %d (threshold: %d)", ip, count, r.threshold)
		if count > r.threshold {
			ips = append(ips, ip)
		}
	}
	sort.Strings(ips)

	for _, ip := range ips {
		count := counts[ip]
		mitigation := fmt.Sprintf("Block IP %s or investigate for malicious activity.", ip)

		attack := model.NewFinding(model.CategoryAttack,
			fmt.Sprintf("Potential port scan detected from %s: %d connections", ip, count), mitigation)
		alert := model.NewFinding(model.CategoryAttack,
			fmt.Sprintf("Potential attack: %d connections from %s", count, ip), mitigation)

		attacks = append(attacks, attack)
		alerts = append(alerts, alert)
		r.logger.Warnf("Port Scan Rule Alert: %s", attack.Message)
	}

	return attacks, alerts
}

// ConnectionsPerIP sums device connection counts by remote IP, ignoring ports
func ConnectionsPerIP(devices []model.Device) map[string]int {
	counts := make(map[string]int)
	for _, d := range devices {
		n := d.ConnectionCount
		if n <= 0 {
			n = 1
		}
		counts[d.IP] += n
	}
	return counts
}
