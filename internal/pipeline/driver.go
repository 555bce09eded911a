package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultTickInterval = time.Second

// Pass is one unit of tick work
type Pass interface {
	Process(ctx context.Context) error
}

// Driver fires a pass every interval. At most one pass is in flight; a tick
// that finds the previous pass still running is skipped, never queued.
type Driver struct {
	pass     Pass
	interval time.Duration
	logger   *logrus.Logger
	onTick   func(result string, seconds float64)

	running atomic.Bool
	wg      sync.WaitGroup

	ticks   atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

func NewDriver(pass Pass, interval time.Duration, logger *logrus.Logger) *Driver {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Driver{
		pass:     pass,
		interval: interval,
		logger:   logger,
	}
}

// OnTick registers a callback invoked with "ok", "failed" or "skipped" after
// every tick. It must be set before Run.
func (d *Driver) OnTick(fn func(result string, seconds float64)) {
	d.onTick = fn
}

// Run ticks until ctx is done, then waits for the in-flight pass to finish
func (d *Driver) Run(ctx context.Context) {
	d.logger.Infof("[Driver] started, tick interval %v", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			d.logger.Info("[Driver] stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick starts a pass in the background unless one is already running. It
// reports whether a pass was started.
func (d *Driver) Tick(ctx context.Context) bool {
	if !d.running.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		d.logger.Debug("[Driver] previous tick still running, skipping")
		d.report("skipped", 0)
		return false
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.running.Store(false)

		start := time.Now()
		err := d.pass.Process(ctx)
		elapsed := time.Since(start).Seconds()

		d.ticks.Add(1)
		if err != nil {
			d.failed.Add(1)
			d.logger.Errorf("[Driver] tick failed, keeping previous state: %v", err)
			d.report("failed", elapsed)
			return
		}
		d.report("ok", elapsed)
	}()
	return true
}

// Wait blocks until the in-flight pass, if any, completes
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Stats returns completed, skipped and failed tick counts
func (d *Driver) Stats() (ticks, skipped, failed uint64) {
	return d.ticks.Load(), d.skipped.Load(), d.failed.Load()
}

func (d *Driver) report(result string, seconds float64) {
	if d.onTick != nil {
		d.onTick(result, seconds)
	}
}
