package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusMetrics struct {
	// Tick metrics
	TickTotal        *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	TelemetryErrors  *prometheus.CounterVec
	DetectorFailures *prometheus.CounterVec

	// Traffic metrics
	TrafficKbps *prometheus.GaugeVec
	Devices     prometheus.Gauge

	// Anomaly detection metrics
	BaselineTrafficRate *prometheus.GaugeVec
	SpikeThreshold      *prometheus.GaugeVec

	// Rule and finding metrics
	Rules          prometheus.Gauge
	FindingCounter *prometheus.CounterVec
	BreakerOpen    prometheus.Gauge
}

// NewPrometheusMetrics registers every collector on reg. Passing nil uses the
// default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		TickTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostwatch_ticks_total",
				Help: "Total number of driver ticks by result",
			},
			[]string{"result"},
		),

		TickDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hostwatch_tick_duration_seconds",
				Help:    "Time spent on one sampling and detection pass",
				Buckets: prometheus.DefBuckets,
			},
		),

		TelemetryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostwatch_telemetry_errors_total",
				Help: "Total number of failed telemetry reads",
			},
			[]string{"source"},
		),

		DetectorFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostwatch_detector_failures_total",
				Help: "Total number of detector passes that panicked",
			},
			[]string{"detector"},
		),

		TrafficKbps: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostwatch_traffic_kbps",
				Help: "Interface traffic rate of the last tick in Kbps",
			},
			[]string{"direction"},
		),

		Devices: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hostwatch_devices",
				Help: "Number of remote endpoints in the device table",
			},
		),

		BaselineTrafficRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostwatch_baseline_traffic_kbps",
				Help: "Mean traffic rate of the anomaly window in Kbps",
			},
			[]string{"direction"},
		),

		SpikeThreshold: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostwatch_spike_threshold_kbps",
				Help: "Traffic rate above which a sample is anomalous",
			},
			[]string{"direction"},
		),

		Rules: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hostwatch_rules",
				Help: "Number of user threshold rules",
			},
		),

		FindingCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostwatch_findings_total",
				Help: "Total findings detected",
			},
			[]string{"category", "severity"},
		),

		BreakerOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hostwatch_telemetry_breaker_open",
				Help: "1 while the telemetry circuit breaker is open",
			},
		),
	}
}

func (m *PrometheusMetrics) RecordTick(result string, seconds float64) {
	m.TickTotal.WithLabelValues(result).Inc()
	if seconds > 0 {
		m.TickDuration.Observe(seconds)
	}
}

func (m *PrometheusMetrics) RecordTelemetryError(source string) {
	m.TelemetryErrors.WithLabelValues(source).Inc()
}

func (m *PrometheusMetrics) RecordDetectorFailure(detector string) {
	m.DetectorFailures.WithLabelValues(detector).Inc()
}

func (m *PrometheusMetrics) UpdateTraffic(incoming, outgoing float64) {
	m.TrafficKbps.WithLabelValues("incoming").Set(incoming)
	m.TrafficKbps.WithLabelValues("outgoing").Set(outgoing)
}

func (m *PrometheusMetrics) UpdateDevices(count int) {
	m.Devices.Set(float64(count))
}

func (m *PrometheusMetrics) UpdateBaseline(direction string, mean, threshold float64) {
	m.BaselineTrafficRate.WithLabelValues(direction).Set(mean)
	m.SpikeThreshold.WithLabelValues(direction).Set(threshold)
}

func (m *PrometheusMetrics) UpdateRules(count int) {
	m.Rules.Set(float64(count))
}

func (m *PrometheusMetrics) RecordFinding(category, severity string) {
	if category == "" {
		category = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}
	m.FindingCounter.WithLabelValues(category, severity).Inc()
}

func (m *PrometheusMetrics) UpdateBreaker(state string) {
	if state == "open" {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
