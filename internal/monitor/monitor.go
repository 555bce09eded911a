package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"hostwatch/internal/alert"
	"hostwatch/internal/client"
	"hostwatch/internal/model"
	"hostwatch/internal/pipeline"
	"hostwatch/internal/registry"
	"hostwatch/internal/rules"
	"hostwatch/internal/rules/builtin"
	"hostwatch/internal/sampler"
	"hostwatch/internal/storage"
	"hostwatch/internal/utils"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTimestampLayout = "1/2/2006, 3:04:05 PM"
	lastSeenLayout         = "3:04:05 PM"
)

type Options struct {
	TickInterval     time.Duration
	Sampler          sampler.Options
	HistorySize      int
	StdDevMultiplier float64
	AttackThreshold  int
	LogCapacity      int
	TimestampLayout  string
	Rules            []model.RuleConfig
}

// OptionsFromConfig maps the YAML configuration onto monitor options
func OptionsFromConfig(cfg *utils.Config) Options {
	return Options{
		TickInterval: cfg.TickInterval(),
		Sampler: sampler.Options{
			MeasureInterval:  cfg.MeasureInterval(),
			Timeout:          cfg.SamplerTimeout(),
			Interface:        cfg.Sampler.Interface,
			FailureThreshold: cfg.Sampler.Breaker.FailureThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout(),
		},
		HistorySize:      cfg.Detection.HistorySize,
		StdDevMultiplier: cfg.Detection.StdDevMultiplier,
		AttackThreshold:  cfg.Detection.AttackThreshold,
		LogCapacity:      cfg.Detection.LogCapacity,
		TimestampLayout:  cfg.Application.TimestampLayout,
		Rules:            cfg.Rules,
	}
}

// Monitor owns the engine components and exposes the read/write operations
// the HTTP layer calls.
type Monitor struct {
	sampler   *sampler.Sampler
	registry  *registry.Registry
	engine    *rules.Engine
	alerts    *storage.FindingLog
	attacks   *storage.FindingLog
	processor *pipeline.Processor
	driver    *pipeline.Driver
	layout    string
	logger    *logrus.Logger
}

// New wires the engine. metrics may be nil.
func New(provider sampler.TelemetryProvider, opts Options, metrics *client.PrometheusMetrics, logger *logrus.Logger) (*Monitor, error) {
	if opts.TimestampLayout == "" {
		opts.TimestampLayout = DefaultTimestampLayout
	}

	m := &Monitor{
		sampler:  sampler.NewSampler(provider, opts.Sampler, logger),
		registry: registry.NewRegistry(logger),
		engine:   rules.NewEngine(logger),
		alerts:   storage.NewFindingLog("alerts", opts.LogCapacity, logger),
		attacks:  storage.NewFindingLog("attacks", opts.LogCapacity, logger),
		layout:   opts.TimestampLayout,
		logger:   logger,
	}

	if err := m.engine.LoadRules(opts.Rules); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	if metrics != nil {
		metrics.UpdateRules(len(opts.Rules))
	}

	m.processor = pipeline.NewProcessor(pipeline.ProcessorConfig{
		Source:   m.sampler,
		Registry: m.registry,
		Engine:   m.engine,
		Spike:    builtin.NewTrafficSpikeRule(opts.HistorySize, opts.StdDevMultiplier, logger),
		Scan:     builtin.NewPortScanRule(opts.AttackThreshold, logger),
		Alerts:   m.alerts,
		Attacks:  m.attacks,
		Metrics:  metrics,
		Logger:   logger,
	})

	m.driver = pipeline.NewDriver(m.processor, opts.TickInterval, logger)
	if metrics != nil {
		m.driver.OnTick(metrics.RecordTick)
	}

	return m, nil
}

func (m *Monitor) RegisterNotifier(n alert.Notifier) {
	m.processor.RegisterNotifier(n)
}

// Run drives ticks and notifier dispatch until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) {
	go m.processor.DispatchAlerts(ctx)
	m.driver.Run(ctx)
}

// Metrics returns host CPU, memory and uptime
func (m *Monitor) Metrics(ctx context.Context) (model.MetricsView, error) {
	sys, err := m.sampler.System(ctx)
	if err != nil {
		return model.MetricsView{}, err
	}
	return model.MetricsView{
		CPU:    formatFloat(sys.CPUPercent),
		Memory: formatFloat(sys.MemoryPercent),
		Uptime: formatUptime(sys.Uptime),
	}, nil
}

// Network takes its own two-point sample, independent of the driver
func (m *Monitor) Network(ctx context.Context) (model.NetworkView, error) {
	traffic, err := m.sampler.Network(ctx)
	if err != nil {
		return model.NetworkView{}, err
	}
	return model.NetworkView{
		Incoming: formatFloat(traffic.Incoming),
		Outgoing: formatFloat(traffic.Outgoing),
	}, nil
}

func (m *Monitor) Devices() []model.DeviceView {
	devices := m.registry.Devices()
	views := make([]model.DeviceView, 0, len(devices))
	for _, d := range devices {
		port := "N/A"
		if d.Port != 0 {
			port = strconv.FormatUint(uint64(d.Port), 10)
		}
		views = append(views, model.DeviceView{
			ID:              d.Key(),
			IP:              d.IP,
			Port:            port,
			BytesIn:         formatFloat(model.BytesToKbps(d.BytesIn)),
			BytesOut:        formatFloat(model.BytesToKbps(d.BytesOut)),
			Protocol:        d.Protocol,
			ConnectionCount: d.ConnectionCount,
			LastSeen:        d.LastSeen.Format(lastSeenLayout),
		})
	}
	return views
}

func (m *Monitor) Rules() []model.RuleConfig {
	rules := m.engine.Rules()
	configs := make([]model.RuleConfig, 0, len(rules))
	for _, r := range rules {
		configs = append(configs, r.Config())
	}
	return configs
}

func (m *Monitor) AddRule(name, condition string) (model.RuleConfig, error) {
	rule, err := m.engine.AddRule(name, condition)
	if err != nil {
		return model.RuleConfig{}, err
	}
	return rule.Config(), nil
}

func (m *Monitor) DeleteRule(index int) error {
	return m.engine.DeleteRule(index)
}

func (m *Monitor) Alerts() []model.FindingView {
	return m.views(m.alerts.List())
}

func (m *Monitor) Attacks() []model.FindingView {
	return m.views(m.attacks.List())
}

// Intrusions are the threshold rule violations in the alert log
func (m *Monitor) Intrusions() []model.FindingView {
	return m.views(m.alerts.Filter(model.CategoryViolation))
}

func (m *Monitor) Anomalies() []model.FindingView {
	return m.views(m.alerts.Filter(model.CategoryAnomaly))
}

// SubscribeAlerts streams findings recorded in the alert log from now on
func (m *Monitor) SubscribeAlerts(filter storage.Filter, buffer int) *storage.Subscriber {
	return m.alerts.Subscribe(filter, buffer)
}

func (m *Monitor) UnsubscribeAlerts(sub *storage.Subscriber) {
	m.alerts.Unsubscribe(sub)
}

// View formats a finding for the HTTP layer
func (m *Monitor) View(f model.Finding) model.FindingView {
	return model.FindingView{
		ID:         f.ID,
		Timestamp:  f.Timestamp.Format(m.layout),
		Message:    f.Message,
		Mitigation: f.Mitigation,
		Category:   f.Category,
		Severity:   f.Severity,
	}
}

func (m *Monitor) views(findings []model.Finding) []model.FindingView {
	views := make([]model.FindingView, 0, len(findings))
	for _, f := range findings {
		views = append(views, m.View(f))
	}
	return views
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatUptime(d time.Duration) string {
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := (total % (24 * 60)) / 60
	minutes := total % 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}
