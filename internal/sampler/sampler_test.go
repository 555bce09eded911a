package sampler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"hostwatch/internal/model"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeProvider serves counter reads from a script, one entry per call
type fakeProvider struct {
	mu       sync.Mutex
	conns    []model.Connection
	counters [][]model.InterfaceCounters
	reads    int
	system   model.SystemMetrics
	err      error
	block    bool
}

func (p *fakeProvider) Connections(ctx context.Context) ([]model.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.conns, nil
}

func (p *fakeProvider) InterfaceCounters(ctx context.Context) ([]model.InterfaceCounters, error) {
	p.mu.Lock()
	block, err := p.block, p.err
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.reads
	if i >= len(p.counters) {
		i = len(p.counters) - 1
	}
	p.reads++
	return p.counters[i], nil
}

func (p *fakeProvider) SystemMetrics(ctx context.Context) (model.SystemMetrics, error) {
	if p.err != nil {
		return model.SystemMetrics{}, p.err
	}
	return p.system, nil
}

func testOptions() Options {
	return Options{
		MeasureInterval:  10 * time.Millisecond,
		Timeout:          time.Second,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	}
}

func TestSampleComputesRates(t *testing.T) {
	p := &fakeProvider{
		conns: []model.Connection{{Protocol: "tcp", State: model.ConnStateEstablished, RemoteIP: "1.2.3.4"}},
		counters: [][]model.InterfaceCounters{
			{{Name: "eth0", BytesRecv: 1000, BytesSent: 500}},
			{{Name: "eth0", BytesRecv: 2000, BytesSent: 600}},
		},
	}
	s := NewSampler(p, testOptions(), quietLogger())

	snap, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Interface != "eth0" || len(snap.Connections) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	// 1000 bytes over a 10ms interval
	if snap.BytesInPerSec != 100000 || snap.BytesOutPerSec != 10000 {
		t.Errorf("expected 100000/10000 B/s, got %v/%v", snap.BytesInPerSec, snap.BytesOutPerSec)
	}
}

func TestSamplePicksBusiestInterface(t *testing.T) {
	p := &fakeProvider{
		counters: [][]model.InterfaceCounters{
			{{Name: "lo", BytesRecv: 10}, {Name: "eth0", BytesRecv: 9000}},
			{{Name: "lo", BytesRecv: 20}, {Name: "eth0", BytesRecv: 9100}},
		},
	}
	s := NewSampler(p, testOptions(), quietLogger())

	snap, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Interface != "eth0" {
		t.Errorf("expected eth0, got %s", snap.Interface)
	}
}

func TestSampleConfiguredInterfaceMissing(t *testing.T) {
	p := &fakeProvider{
		counters: [][]model.InterfaceCounters{{{Name: "eth0"}}},
	}
	opts := testOptions()
	opts.Interface = "wlan0"
	s := NewSampler(p, opts, quietLogger())

	_, err := s.Sample(context.Background())
	if !errors.Is(err, ErrTelemetryUnavailable) {
		t.Fatalf("expected ErrTelemetryUnavailable, got %v", err)
	}
}

func TestSampleCounterWentBackwards(t *testing.T) {
	p := &fakeProvider{
		counters: [][]model.InterfaceCounters{
			{{Name: "eth0", BytesRecv: 5000, BytesSent: 5000}},
			{{Name: "eth0", BytesRecv: 100, BytesSent: 5100}},
		},
	}
	s := NewSampler(p, testOptions(), quietLogger())

	snap, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.BytesInPerSec != 0 {
		t.Errorf("reset counter should read as 0, got %v", snap.BytesInPerSec)
	}
	if snap.BytesOutPerSec != 10000 {
		t.Errorf("expected 10000 B/s outgoing, got %v", snap.BytesOutPerSec)
	}
}

func TestSampleWrapsProviderError(t *testing.T) {
	boom := errors.New("boom")
	s := NewSampler(&fakeProvider{err: boom}, testOptions(), quietLogger())

	_, err := s.Sample(context.Background())
	if !errors.Is(err, ErrTelemetryUnavailable) {
		t.Fatalf("expected ErrTelemetryUnavailable, got %v", err)
	}
}

func TestSampleTimesOut(t *testing.T) {
	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	s := NewSampler(&fakeProvider{block: true}, opts, quietLogger())

	start := time.Now()
	_, err := s.Sample(context.Background())
	if !errors.Is(err, ErrTelemetryUnavailable) {
		t.Fatalf("expected ErrTelemetryUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("sample should give up at the timeout, took %v", elapsed)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	p := &fakeProvider{err: errors.New("down")}
	s := NewSampler(p, testOptions(), quietLogger())

	for i := 0; i < 2; i++ {
		if _, err := s.Sample(context.Background()); err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}
	if s.BreakerState() != "open" {
		t.Fatalf("expected open breaker, got %s", s.BreakerState())
	}

	// provider recovered, but the breaker keeps failing fast until OpenTimeout
	p.mu.Lock()
	p.err = nil
	p.counters = [][]model.InterfaceCounters{{{Name: "eth0"}}}
	p.mu.Unlock()

	if _, err := s.Sample(context.Background()); !errors.Is(err, ErrTelemetryUnavailable) {
		t.Fatalf("expected fail-fast error while open, got %v", err)
	}
	p.mu.Lock()
	reads := p.reads
	p.mu.Unlock()
	if reads != 0 {
		t.Errorf("open breaker should not reach the provider, got %d reads", reads)
	}
}

func TestAdHocReadsDoNotTripBreaker(t *testing.T) {
	p := &fakeProvider{
		counters: [][]model.InterfaceCounters{
			{{Name: "eth0", BytesRecv: 0}},
			{{Name: "eth0", BytesRecv: 1000}},
		},
	}
	s := NewSampler(p, testOptions(), quietLogger())

	// clients hanging up mid-measure
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		if _, err := s.Network(cancelled); !errors.Is(err, ErrTelemetryUnavailable) {
			t.Fatalf("call %d: expected ErrTelemetryUnavailable, got %v", i+1, err)
		}
	}

	// provider failing for system reads only
	p.mu.Lock()
	p.err = errors.New("down")
	p.mu.Unlock()
	for i := 0; i < 3; i++ {
		if _, err := s.System(context.Background()); err == nil {
			t.Fatalf("system call %d should fail", i+1)
		}
	}
	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()

	if s.BreakerState() != "closed" {
		t.Fatalf("expected closed breaker, got %s", s.BreakerState())
	}
	if _, err := s.Sample(context.Background()); err != nil {
		t.Fatalf("sample after ad hoc failures should succeed, got %v", err)
	}
}

func TestCancelledSampleDoesNotTripBreaker(t *testing.T) {
	p := &fakeProvider{
		counters: [][]model.InterfaceCounters{{{Name: "eth0"}}},
	}
	s := NewSampler(p, testOptions(), quietLogger())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		if _, err := s.Sample(cancelled); err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}
	if s.BreakerState() != "closed" {
		t.Fatalf("cancellation must not open the breaker, got %s", s.BreakerState())
	}
	if _, err := s.Sample(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNetworkAndSystem(t *testing.T) {
	p := &fakeProvider{
		counters: [][]model.InterfaceCounters{
			{{Name: "eth0", BytesRecv: 0, BytesSent: 0}},
			{{Name: "eth0", BytesRecv: 1250, BytesSent: 2500}},
		},
		system: model.SystemMetrics{CPUPercent: 12.5, MemoryPercent: 40, Uptime: time.Hour},
	}
	s := NewSampler(p, testOptions(), quietLogger())

	traffic, err := s.Network(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1250 bytes / 10ms = 125000 B/s = 1000 Kbps
	if traffic.Incoming != 1000 || traffic.Outgoing != 2000 {
		t.Errorf("unexpected traffic %+v", traffic)
	}

	sys, err := s.System(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sys != p.system {
		t.Errorf("expected %+v, got %+v", p.system, sys)
	}
}

func TestNewSamplerDefaults(t *testing.T) {
	s := NewSampler(&fakeProvider{}, Options{}, quietLogger())
	if s.opts.MeasureInterval != time.Second || s.opts.FailureThreshold != 3 {
		t.Errorf("defaults not applied: %+v", s.opts)
	}
	if s.opts.Timeout <= s.opts.MeasureInterval {
		t.Errorf("timeout %v must exceed measure interval", s.opts.Timeout)
	}
}
