package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hostwatch/internal/model"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrTelemetryUnavailable wraps every failure to obtain a snapshot: provider
// errors, timeouts and an open circuit breaker alike.
var ErrTelemetryUnavailable = errors.New("telemetry unavailable")

// TelemetryProvider is the platform capability the sampler reads from
type TelemetryProvider interface {
	Connections(ctx context.Context) ([]model.Connection, error)
	InterfaceCounters(ctx context.Context) ([]model.InterfaceCounters, error)
	SystemMetrics(ctx context.Context) (model.SystemMetrics, error)
}

type Options struct {
	// MeasureInterval separates the two counter reads of a rate measurement
	MeasureInterval time.Duration
	// Timeout bounds one whole call, including MeasureInterval
	Timeout time.Duration
	// Interface pins the measured interface; empty picks the busiest one
	Interface string
	// FailureThreshold consecutive failures open the breaker for OpenTimeout
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		MeasureInterval:  time.Second,
		Timeout:          5 * time.Second,
		FailureThreshold: 3,
		OpenTimeout:      10 * time.Second,
	}
}

// Sampler turns provider reads into snapshots. It never retries: a failed
// call is reported to the caller and the breaker keeps repeated failures fast.
// Only Sample goes through the breaker; Network and System are ad hoc reads
// and cannot trip it.
type Sampler struct {
	provider TelemetryProvider
	opts     Options
	breaker  *gobreaker.CircuitBreaker[any]
	logger   *logrus.Logger
}

func NewSampler(provider TelemetryProvider, opts Options, logger *logrus.Logger) *Sampler {
	defaults := DefaultOptions()
	if opts.MeasureInterval <= 0 {
		opts.MeasureInterval = defaults.MeasureInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Timeout <= opts.MeasureInterval {
		opts.Timeout = opts.MeasureInterval + defaults.MeasureInterval
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = defaults.FailureThreshold
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaults.OpenTimeout
	}

	s := &Sampler{
		provider: provider,
		opts:     opts,
		logger:   logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "telemetry",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		// A caller that gave up says nothing about the provider
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Errorf("[Sampler] %s breaker opened after %d consecutive failures, failing fast for %v",
					name, opts.FailureThreshold, opts.OpenTimeout)
				return
			}
			logger.Infof("[Sampler] %s breaker %s -> %s", name, from, to)
		},
	})
	return s
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open")
func (s *Sampler) BreakerState() string {
	return s.breaker.State().String()
}

// Sample reads established connections and the interface byte rate
func (s *Sampler) Sample(ctx context.Context) (*model.Snapshot, error) {
	result, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		return s.breaker.Execute(func() (any, error) {
			conns, err := s.provider.Connections(ctx)
			if err != nil {
				return nil, err
			}

			iface, bytesIn, bytesOut, err := s.measure(ctx)
			if err != nil {
				return nil, err
			}

			return &model.Snapshot{
				Timestamp:      time.Now(),
				Connections:    conns,
				Interface:      iface,
				BytesInPerSec:  bytesIn,
				BytesOutPerSec: bytesOut,
			}, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.Snapshot), nil
}

// Network takes one ad hoc rate measurement, independent of the driver
func (s *Sampler) Network(ctx context.Context) (model.TrafficSample, error) {
	result, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		_, bytesIn, bytesOut, err := s.measure(ctx)
		if err != nil {
			return nil, err
		}
		return model.TrafficSample{
			Incoming: model.BytesToKbps(bytesIn),
			Outgoing: model.BytesToKbps(bytesOut),
		}, nil
	})
	if err != nil {
		return model.TrafficSample{}, err
	}
	return result.(model.TrafficSample), nil
}

// System returns CPU, memory and uptime of the host
func (s *Sampler) System(ctx context.Context) (model.SystemMetrics, error) {
	result, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		return s.provider.SystemMetrics(ctx)
	})
	if err != nil {
		return model.SystemMetrics{}, err
	}
	return result.(model.SystemMetrics), nil
}

func (s *Sampler) execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	result, err := fn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTelemetryUnavailable, err)
	}
	return result, nil
}

// measure reads the counters twice, MeasureInterval apart, and returns the
// per-second byte rates of the selected interface.
func (s *Sampler) measure(ctx context.Context) (string, float64, float64, error) {
	first, err := s.provider.InterfaceCounters(ctx)
	if err != nil {
		return "", 0, 0, err
	}

	iface := s.opts.Interface
	if iface == "" {
		iface = busiestInterface(first)
	}
	before, ok := findInterface(first, iface)
	if !ok {
		return "", 0, 0, fmt.Errorf("network interface %q not found", iface)
	}

	timer := time.NewTimer(s.opts.MeasureInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return "", 0, 0, ctx.Err()
	}

	second, err := s.provider.InterfaceCounters(ctx)
	if err != nil {
		return "", 0, 0, err
	}
	after, ok := findInterface(second, iface)
	if !ok {
		return "", 0, 0, fmt.Errorf("network interface %q not found", iface)
	}

	seconds := s.opts.MeasureInterval.Seconds()
	bytesIn := float64(counterDelta(before.BytesRecv, after.BytesRecv)) / seconds
	bytesOut := float64(counterDelta(before.BytesSent, after.BytesSent)) / seconds
	return iface, bytesIn, bytesOut, nil
}

func busiestInterface(counters []model.InterfaceCounters) string {
	var name string
	var best uint64
	for i, c := range counters {
		total := c.BytesRecv + c.BytesSent
		if i == 0 || total > best {
			name = c.Name
			best = total
		}
	}
	return name
}

func findInterface(counters []model.InterfaceCounters, name string) (model.InterfaceCounters, bool) {
	for _, c := range counters {
		if c.Name == name {
			return c, true
		}
	}
	return model.InterfaceCounters{}, false
}

// counterDelta treats a counter that went backwards (reset or wrap) as idle
func counterDelta(before, after uint64) uint64 {
	if after < before {
		return 0
	}
	return after - before
}
