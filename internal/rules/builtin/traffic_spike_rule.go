package builtin

import (
	"fmt"
	"math"
	"sync"

	"hostwatch/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	DefaultHistorySize      = 20
	DefaultStdDevMultiplier = 1.5

	incomingSpikeMitigation = "Investigate potential DDoS attack or block excessive incoming connections."
	outgoingSpikeMitigation = "Scan for malware or unauthorized data exfiltration."
)

// Baseline is the rolling statistic of one traffic direction
type Baseline struct {
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	Threshold float64 `json:"threshold"`
}

// TrafficSpikeRule flags samples that rise above mean + k·σ of a sliding
// window of recent samples. The window is only touched by Observe.
type TrafficSpikeRule struct {
	name        string
	historySize int
	multiplier  float64
	incoming    []float64
	outgoing    []float64
	baselineIn  Baseline
	baselineOut Baseline
	ready       bool
	logger      *logrus.Logger
	mu          sync.RWMutex
}

func NewTrafficSpikeRule(historySize int, multiplier float64, logger *logrus.Logger) *TrafficSpikeRule {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if multiplier <= 0 {
		multiplier = DefaultStdDevMultiplier
	}
	return &TrafficSpikeRule{
		name:        "traffic_spike",
		historySize: historySize,
		multiplier:  multiplier,
		incoming:    make([]float64, 0, historySize+1),
		outgoing:    make([]float64, 0, historySize+1),
		logger:      logger,
	}
}

func (r *TrafficSpikeRule) Name() string {
	return r.name
}

// Observe adds the sample to the window and, once the window is full, checks
// the sample against the baseline the window now describes.
func (r *TrafficSpikeRule) Observe(sample model.TrafficSample) []model.Finding {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.incoming = pushWindow(r.incoming, sample.Incoming, r.historySize)
	r.outgoing = pushWindow(r.outgoing, sample.Outgoing, r.historySize)

	if len(r.incoming) < r.historySize {
		r.logger.Debugf("[Traffic Spike] Collecting baseline... %d/%d samples", len(r.incoming), r.historySize)
		return nil
	}

	r.baselineIn = r.baseline(r.incoming)
	r.baselineOut = r.baseline(r.outgoing)
	if !r.ready {
		r.ready = true
		r.logger.Infof("[Traffic Spike] Baseline ready: incoming %.2f Kbps, outgoing %.2f Kbps",
			r.baselineIn.Mean, r.baselineOut.Mean)
	}

	var findings []model.Finding
	if sample.Incoming > r.baselineIn.Threshold {
		message := fmt.Sprintf("Anomaly detected: Incoming traffic %.2f Kbps (Baseline: %.2f Kbps)", sample.Incoming, r.baselineIn.Mean)
		findings = append(findings, model.NewFinding(model.CategoryAnomaly, message, incomingSpikeMitigation))
		r.logger.Warnf("Traffic Spike Rule Alert: %s", message)
	}
	if sample.Outgoing > r.baselineOut.Threshold {
		message := fmt.Sprintf("Anomaly detected: Outgoing traffic %.2f Kbps (Baseline: %.2f Kbps)", sample.Outgoing, r.baselineOut.Mean)
		findings = append(findings, model.NewFinding(model.CategoryAnomaly, message, outgoingSpikeMitigation))
		r.logger.Warnf("Traffic Spike Rule Alert: %s", message)
	}
	return findings
}

// Baselines returns the latest incoming/outgoing baselines; ok is false until
// the window has filled once.
func (r *TrafficSpikeRule) Baselines() (incoming, outgoing Baseline, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baselineIn, r.baselineOut, r.ready
}

// WindowLen is the number of samples currently held
func (r *TrafficSpikeRule) WindowLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.incoming)
}

func (r *TrafficSpikeRule) baseline(values []float64) Baseline {
	mean, stdDev := meanStdDev(values)
	return Baseline{Mean: mean, StdDev: stdDev, Threshold: mean + r.multiplier*stdDev}
}

func pushWindow(window []float64, value float64, size int) []float64 {
	window = append(window, value)
	if len(window) > size {
		copy(window, window[len(window)-size:])
		window = window[:size]
	}
	return window
}

// meanStdDev returns the mean and population standard deviation
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
