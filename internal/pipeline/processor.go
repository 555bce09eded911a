package pipeline

import (
	"context"
	"sync"

	"hostwatch/internal/alert"
	"hostwatch/internal/client"
	"hostwatch/internal/model"
	"hostwatch/internal/registry"
	"hostwatch/internal/rules"
	"hostwatch/internal/rules/builtin"
	"hostwatch/internal/storage"

	"github.com/sirupsen/logrus"
)

// SnapshotSource is the part of the sampler a tick needs
type SnapshotSource interface {
	Sample(ctx context.Context) (*model.Snapshot, error)
	BreakerState() string
}

// Processor runs one tick: sample, ingest, evaluate rules, observe the
// anomaly window, scan for attacks, record findings.
type Processor struct {
	source   SnapshotSource
	registry *registry.Registry
	engine   *rules.Engine
	spike    *builtin.TrafficSpikeRule
	scan     *builtin.PortScanRule
	alerts   *storage.FindingLog
	attacks  *storage.FindingLog
	metrics  *client.PrometheusMetrics
	logger   *logrus.Logger

	alertChannel chan model.Finding
	notifiers    []alert.Notifier
	notifiersMu  sync.RWMutex
}

type ProcessorConfig struct {
	Source   SnapshotSource
	Registry *registry.Registry
	Engine   *rules.Engine
	Spike    *builtin.TrafficSpikeRule
	Scan     *builtin.PortScanRule
	Alerts   *storage.FindingLog
	Attacks  *storage.FindingLog
	// Metrics is optional
	Metrics *client.PrometheusMetrics
	Logger  *logrus.Logger
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		source:   cfg.Source,
		registry: cfg.Registry,
		engine:   cfg.Engine,
		spike:    cfg.Spike,
		scan:     cfg.Scan,
		alerts:   cfg.Alerts,
		attacks:  cfg.Attacks,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,

		alertChannel: make(chan model.Finding, 100),
	}
}

// RegisterNotifier adds a notifier that receives every recorded finding
func (p *Processor) RegisterNotifier(n alert.Notifier) {
	p.notifiersMu.Lock()
	defer p.notifiersMu.Unlock()
	p.notifiers = append(p.notifiers, n)
}

// Process runs one pass. A telemetry failure leaves the device table and the
// anomaly window untouched and is returned to the caller.
func (p *Processor) Process(ctx context.Context) error {
	snapshot, err := p.source.Sample(ctx)
	if p.metrics != nil {
		p.metrics.UpdateBreaker(p.source.BreakerState())
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordTelemetryError("sample")
		}
		return err
	}

	p.registry.Ingest(snapshot)
	devices := p.registry.Devices()
	traffic := snapshot.Sample()

	if p.metrics != nil {
		p.metrics.UpdateTraffic(traffic.Incoming, traffic.Outgoing)
		p.metrics.UpdateDevices(len(devices))
	}

	p.runDetector("rules", func() {
		if p.metrics != nil {
			p.metrics.UpdateRules(len(p.engine.Rules()))
		}
		for _, f := range p.engine.Evaluate(devices) {
			p.record(p.alerts, f)
		}
	})

	p.runDetector("traffic_spike", func() {
		for _, f := range p.spike.Observe(traffic) {
			p.record(p.alerts, f)
		}
		if in, out, ok := p.spike.Baselines(); ok && p.metrics != nil {
			p.metrics.UpdateBaseline("incoming", in.Mean, in.Threshold)
			p.metrics.UpdateBaseline("outgoing", out.Mean, out.Threshold)
		}
	})

	p.runDetector("port_scan", func() {
		attacks, alerts := p.scan.Scan(devices)
		for _, f := range attacks {
			p.record(p.attacks, f)
		}
		for _, f := range alerts {
			p.record(p.alerts, f)
		}
	})

	return nil
}

// runDetector keeps a panicking detector from taking the rest of the tick down
func (p *Processor) runDetector(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("[Processor] detector %s failed: %v", name, r)
			if p.metrics != nil {
				p.metrics.RecordDetectorFailure(name)
			}
		}
	}()
	fn()
}

func (p *Processor) record(log *storage.FindingLog, finding model.Finding) {
	log.Record(finding)
	if p.metrics != nil {
		p.metrics.RecordFinding(string(finding.Category), finding.Severity)
	}

	// Attack records are mirrored into the alert log; notify once per pair
	if log == p.attacks {
		return
	}

	select {
	case p.alertChannel <- finding:
	default:
		p.logger.Error("Alert channel is full, dropping alert")
	}
}

// DispatchAlerts fans queued findings out to the notifiers until ctx is done.
func (p *Processor) DispatchAlerts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case finding := <-p.alertChannel:
			p.notifiersMu.RLock()
			notifiers := make([]alert.Notifier, len(p.notifiers))
			copy(notifiers, p.notifiers)
			p.notifiersMu.RUnlock()

			for _, n := range notifiers {
				if err := n.SendAlert(ctx, finding); err != nil {
					p.logger.Errorf("Failed to send alert: %v", err)
				}
			}
		}
	}
}
