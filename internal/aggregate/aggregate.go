// Package aggregate periodically folds registry snapshots into immutable
// time-series data points: device count, RSSI distribution, and type counts.
// Points land in a bounded in-memory history and are handed to a sink for
// durable storage.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/srg/blewatch/internal/groutine"
	"github.com/srg/blewatch/internal/registry"
)

// DefaultInterval is the aggregation tick cadence. It is wall-clock based
// and independent of scan/rest phase timing.
const DefaultInterval = 10 * time.Second

// SnapshotFunc supplies the current registry snapshot.
type SnapshotFunc func() []registry.DeviceRecord

// Aggregator runs the periodic capture loop.
type Aggregator struct {
	clock  clock.Clock
	logger *logrus.Logger

	// interval is guarded by mu; SetInterval retunes a running loop at its
	// next tick.
	interval time.Duration

	snapshot     SnapshotFunc
	scanDuration func() time.Duration

	// sink receives every captured point, tick or final. Must not block the
	// capture path; the engine wires an async store writer here.
	sink func(DataPoint)

	// emit publishes the aggregate-tick event surface.
	emit func(Stats)

	hist *history

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// Config wires an Aggregator. Zero-value fields fall back to defaults; nil
// sink and emit are allowed and become no-ops.
type Config struct {
	Clock           clock.Clock
	Logger          *logrus.Logger
	Interval        time.Duration
	HistoryCapacity int
	Snapshot        SnapshotFunc
	ScanDuration    func() time.Duration
	Sink            func(DataPoint)
	Emit            func(Stats)
}

// New creates a stopped Aggregator.
func New(cfg Config) *Aggregator {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Snapshot == nil {
		cfg.Snapshot = func() []registry.DeviceRecord { return nil }
	}
	if cfg.ScanDuration == nil {
		cfg.ScanDuration = func() time.Duration { return 0 }
	}
	if cfg.Sink == nil {
		cfg.Sink = func(DataPoint) {}
	}
	if cfg.Emit == nil {
		cfg.Emit = func(Stats) {}
	}

	return &Aggregator{
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		interval:     cfg.Interval,
		snapshot:     cfg.Snapshot,
		scanDuration: cfg.ScanDuration,
		sink:         cfg.Sink,
		emit:         cfg.Emit,
		hist:         newHistory(cfg.HistoryCapacity),
	}
}

// Start launches the tick loop. Starting a running aggregator is a no-op.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return
	}
	a.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	a.stopCh, a.doneCh = stopCh, doneCh

	// The ticker is armed before Start returns so the first interval is
	// already counting when the caller advances a test clock.
	interval := a.interval
	ticker := a.clock.Ticker(interval)
	groutine.Go(nil, "aggregate-tick", func(context.Context) {
		a.run(ticker, interval, stopCh, doneCh)
	})
}

// SetInterval retunes the tick cadence. A running loop picks the new value up
// at its next tick; non-positive values are ignored.
func (a *Aggregator) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.interval = d
	a.mu.Unlock()

	a.logger.WithField("interval", d).Debug("Aggregation cadence updated")
}

// Interval returns the configured tick cadence.
func (a *Aggregator) Interval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interval
}

// Stop cancels the tick loop and waits for it to exit: no tick fires after
// Stop returns. Idempotent.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	stopCh, doneCh := a.stopCh, a.doneCh
	a.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (a *Aggregator) run(ticker *clock.Ticker, interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			// The cadence is re-read before capturing, so once this tick's
			// point is observable the new interval is already armed.
			if next := a.Interval(); next != interval {
				ticker.Stop()
				ticker = a.clock.Ticker(next)
				interval = next
			}

			a.CaptureNow()
		}
	}
}

// CaptureNow takes a sample immediately, outside the tick cadence. The
// scheduler calls this at scan stop so the series always closes with a final
// point.
func (a *Aggregator) CaptureNow() Stats {
	stats := Capture(a.snapshot(), a.clock.Now(), a.scanDuration())

	a.hist.Append(stats.DataPoint)
	a.sink(stats.DataPoint)
	a.emit(stats)

	a.logger.WithFields(logrus.Fields{
		"devices": stats.DeviceCount,
		"types":   stats.DistinctTypes,
	}).Debug("Captured aggregate data point")

	return stats
}

// History returns the buffered points, oldest first.
func (a *Aggregator) History() []DataPoint {
	return a.hist.Points()
}
