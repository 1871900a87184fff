// Package blewatch wires the discovery engine together: the duty-cycle
// scheduler feeds the device registry, the registry fans out to the
// aggregation engine and the persistence gateway, and a session tracker
// brackets the whole lifecycle. Consumers observe the engine through a
// bounded event channel and a query surface; no UI binding leaks in.
package blewatch

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/srg/blewatch/internal/aggregate"
	"github.com/srg/blewatch/internal/eventbus"
	"github.com/srg/blewatch/internal/observation"
	"github.com/srg/blewatch/internal/registry"
	"github.com/srg/blewatch/internal/session"
	"github.com/srg/blewatch/internal/store"
	"github.com/srg/blewatch/scanner"
)

// DefaultEventBuffer bounds the consumer-facing event channel. Slow
// consumers lose the oldest events, never block ingestion.
const DefaultEventBuffer = 256

// Options configures an Engine. Source is required; everything else has
// working defaults (in-memory only persistence via the no-op gateway).
type Options struct {
	Source  observation.Source
	Gateway store.Gateway
	Logger  *logrus.Logger
	Clock   clock.Clock

	Profile scanner.BatteryProfile

	// AggregateInterval overrides the tick cadence; zero uses the profile's
	// foreground base interval.
	AggregateInterval time.Duration

	HistoryCapacity int
	EventBuffer     int
	QueueCapacity   int
}

// Engine is the scan-ingestion core. One logical scanning session is active
// at a time.
type Engine struct {
	logger  *logrus.Logger
	clk     clock.Clock
	reg     *registry.Registry
	sched   *scanner.Scheduler
	tracker *session.Tracker
	agg     *aggregate.Aggregator
	gateway store.Gateway
	writer  *store.AsyncWriter
	events  *eventbus.RingChannel[Event]

	// aggFixed marks an explicit AggregateInterval override; lifecycle swaps
	// then leave the cadence alone.
	aggFixed bool

	closeOnce sync.Once
}

// New assembles a stopped engine.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Gateway == nil {
		opts.Gateway = store.NewNop()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if (opts.Profile == scanner.BatteryProfile{}) {
		opts.Profile = scanner.DefaultProfile()
	}
	aggFixed := opts.AggregateInterval > 0
	if !aggFixed {
		opts.AggregateInterval = opts.Profile.ForegroundInterval
	}

	e := &Engine{
		logger:   opts.Logger,
		clk:      opts.Clock,
		aggFixed: aggFixed,
		gateway:  opts.Gateway,
		writer:   store.NewAsyncWriter(opts.Gateway, opts.Logger, opts.QueueCapacity),
		events:   eventbus.NewRingChannel[Event](opts.EventBuffer),
		tracker:  session.NewTracker(opts.Clock.Now),
	}

	e.reg = registry.New(opts.Logger)

	e.sched = scanner.New(opts.Source, e.ingest,
		scanner.WithClock(opts.Clock),
		scanner.WithLogger(opts.Logger),
		scanner.WithProfile(opts.Profile),
		scanner.WithStatusFunc(func(scanning bool) {
			e.events.Send(Event{Type: EventScanStatus, Scanning: scanning})
		}),
		scanner.WithErrorFunc(func(err error) {
			e.events.Send(Event{Type: EventScanError, Err: err})
		}),
	)

	e.agg = aggregate.New(aggregate.Config{
		Clock:           opts.Clock,
		Logger:          opts.Logger,
		Interval:        opts.AggregateInterval,
		HistoryCapacity: opts.HistoryCapacity,
		Snapshot:        e.reg.Snapshot,
		ScanDuration:    func() time.Duration { return e.sched.Profile().ScanDuration },
		Sink:            e.writer.InsertDataPoint,
		Emit: func(stats aggregate.Stats) {
			e.events.Send(Event{Type: EventAggregateTick, Stats: &stats})
		},
	})

	return e
}

// Start begins a scanning session: the registry is reset, the session is
// recorded and persisted, the scheduler opens the observation stream, and
// the aggregation tick starts. Rejected with scanner.ErrAlreadyRunning while
// a session is in progress.
func (e *Engine) Start(cfg session.Config) error {
	if e.sched.Scanning() {
		return scanner.ErrAlreadyRunning
	}

	e.reg.Clear()

	filter := observation.Filter{
		ServiceUUIDs:    cfg.ServiceUUIDs,
		AllowDuplicates: cfg.AllowDuplicates,
		ScanMode:        cfg.ScanMode,
	}
	if err := e.sched.Start(filter); err != nil {
		return err
	}

	sess, err := e.tracker.Start(cfg)
	if err != nil {
		// The scheduler is the gatekeeper, so an active session here means
		// the two fell out of sync; recover by closing the scan.
		e.sched.Stop()
		return err
	}
	e.writer.UpsertSession(sess)

	e.agg.Start()

	e.logger.WithField("session", sess.ID).Info("Scan session started")
	return nil
}

// Stop ends the session: the scheduler tears down synchronously, a final
// data point is captured, and the frozen session summary is persisted.
// Idempotent; safe to call when nothing is running.
func (e *Engine) Stop() {
	wasScanning := e.sched.Scanning()
	e.sched.Stop()

	if !wasScanning {
		return
	}

	e.agg.CaptureNow()
	e.agg.Stop()

	sess, err := e.tracker.End(e.reg.IDs())
	if err != nil {
		return
	}
	e.writer.UpsertSession(sess)

	e.logger.WithFields(logrus.Fields{
		"session":  sess.ID,
		"devices":  sess.DevicesDiscovered,
		"duration": sess.Duration,
	}).Info("Scan session ended")
}

// Close stops any running session, flushes pending writes, and releases the
// gateway. Idempotent.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.Stop()
		e.writer.Close()
		e.events.Close()
		err = e.gateway.Close()
	})
	return err
}

// ingest is the post-filter observation path: merge, fan out events, and
// queue the persistence writes. Persistence is fire-and-forget; a failed
// write never surfaces here.
func (e *Engine) ingest(obs observation.Observation) {
	rec, isNew := e.reg.Merge(obs)

	if isNew {
		e.events.Send(Event{
			Type:        EventDeviceDiscovered,
			Device:      &rec,
			DeviceCount: e.reg.Len(),
		})
	} else {
		e.events.Send(Event{Type: EventDeviceUpdated, Device: &rec})
	}

	e.writer.UpsertDevice(rec)
	if sess, ok := e.tracker.Current(); ok && sess.IsActive() {
		e.writer.InsertDetection(sess.ID, rec)
	}
}

// Events returns the engine's event surface. The channel is bounded with
// drop-oldest semantics.
func (e *Engine) Events() <-chan Event {
	return e.events.C()
}

// Devices returns the filtered, sorted projection of the current registry
// snapshot.
func (e *Engine) Devices(view registry.View) []registry.DeviceRecord {
	return e.reg.Project(e.reg.Snapshot(), view, e.clk.Now())
}

// Stats computes the current statistics snapshot without recording a data
// point.
func (e *Engine) Stats() aggregate.Stats {
	return aggregate.Capture(e.reg.Snapshot(), e.clk.Now(), e.sched.Profile().ScanDuration)
}

// History returns the in-memory data-point buffer, oldest first.
func (e *Engine) History() []aggregate.DataPoint {
	return e.agg.History()
}

// Session returns the current or most recent session.
func (e *Engine) Session() (session.Session, bool) {
	return e.tracker.Current()
}

// SessionDuration returns live elapsed time while scanning, or the frozen
// duration afterwards.
func (e *Engine) SessionDuration() time.Duration {
	return e.tracker.Duration()
}

// State exposes the scheduler position.
func (e *Engine) State() scanner.State {
	return e.sched.State()
}

// SetBatteryProfile swaps the duty-cycle profile at runtime; takes effect at
// the next phase boundary.
func (e *Engine) SetBatteryProfile(p scanner.BatteryProfile) error {
	return e.sched.SetProfile(p)
}

// SetLifecycle applies the stock profile for a foreground/background
// transition without restarting the session, and retunes the aggregation
// cadence to the profile's interval for that lifecycle (unless an explicit
// AggregateInterval override pinned it).
func (e *Engine) SetLifecycle(l scanner.Lifecycle) {
	e.sched.SetLifecycle(l)

	if e.aggFixed {
		return
	}
	p := e.sched.Profile()
	if l == scanner.Background {
		e.agg.SetInterval(p.BackgroundInterval)
	} else {
		e.agg.SetInterval(p.ForegroundInterval)
	}
}

// DataPoints queries the durable store, ascending by timestamp.
func (e *Engine) DataPoints(q store.DataPointQuery) ([]aggregate.DataPoint, error) {
	return e.gateway.DataPoints(q)
}

// RecentSessions queries the durable store, newest first.
func (e *Engine) RecentSessions(limit int) ([]session.Session, error) {
	return e.gateway.RecentSessions(limit)
}
