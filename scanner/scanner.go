// Package scanner implements the battery-aware duty-cycle scheduler: a timed
// state machine that alternates active-scan and rest phases, gating the one
// and only Observation Source subscription. Duty cycling trades discovery
// latency for battery life; the scheduler guarantees at most one open
// subscription at any instant and that no phase timer outlives Stop.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/srg/blewatch/internal/groutine"
	"github.com/srg/blewatch/internal/observation"
)

// Scheduler owns starting and stopping the Observation Source subscription.
// All state transitions serialize on one mutex; observation delivery is
// gated by a lock-free accept flag so the hot path never contends with
// control operations.
type Scheduler struct {
	src    observation.Source
	clk    clock.Clock
	logger *logrus.Logger

	handler  observation.Handler
	onStatus func(scanning bool)
	onError  func(err error)

	// accepting gates delivery: cleared first thing in Stop, so no
	// observation is processed after Stop returns even if a source
	// misbehaves.
	accepting atomic.Bool

	// minRSSI is the pre-merge discard threshold currently in force. Loaded
	// from the profile at start and at each phase boundary, per the
	// reconfigure-at-next-phase rule.
	minRSSI atomic.Int32

	mu         sync.Mutex
	state      State
	profile    BatteryProfile
	filter     observation.Filter
	lastErr    error
	subscribed bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects the timing source; tests pass clock.NewMock().
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clk = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithProfile sets the initial battery profile.
func WithProfile(p BatteryProfile) Option {
	return func(s *Scheduler) { s.profile = p }
}

// WithStatusFunc registers the scan-status-changed listener.
func WithStatusFunc(f func(bool)) Option {
	return func(s *Scheduler) { s.onStatus = f }
}

// WithErrorFunc registers the scan-error listener. It receives both fatal
// start failures and transient mid-scan faults.
func WithErrorFunc(f func(error)) Option {
	return func(s *Scheduler) { s.onError = f }
}

// New creates an idle scheduler delivering accepted observations to handler.
func New(src observation.Source, handler observation.Handler, opts ...Option) *Scheduler {
	s := &Scheduler{
		src:     src,
		clk:     clock.New(),
		logger:  logrus.New(),
		handler: handler,
		profile: DefaultProfile(),
		state:   Idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handler == nil {
		s.handler = func(observation.Observation) {}
	}
	return s
}

// Start validates the source and opens the subscription. From Idle (or the
// error state, as the explicit retry path) it moves through Initializing
// into ActiveScan; with duty cycling enabled the phase loop starts
// alternating. Starting while running is rejected with ErrAlreadyRunning
// and does not open a second subscription.
func (s *Scheduler) Start(filter observation.Filter) error {
	s.mu.Lock()

	switch s.state {
	case Idle, Failed:
	default:
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	s.state = Initializing
	s.lastErr = nil
	s.filter = filter

	if !s.src.Ready() {
		s.state = Failed
		s.lastErr = ErrNotReady
		s.mu.Unlock()
		s.emitError(ErrNotReady)
		return ErrNotReady
	}

	profile := s.profile
	s.minRSSI.Store(int32(profile.MinRSSI))
	s.accepting.Store(true)

	if err := s.src.Subscribe(filter, s.deliver, s.sourceFault); err != nil {
		s.state = Failed
		s.lastErr = err
		s.accepting.Store(false)
		s.mu.Unlock()

		wrapped := fmt.Errorf("failed to open observation stream: %w", err)
		s.emitError(wrapped)
		return wrapped
	}
	s.subscribed = true
	s.state = ActiveScan

	if profile.DutyCycling {
		stopCh := make(chan struct{})
		doneCh := make(chan struct{})
		s.stopCh, s.doneCh = stopCh, doneCh

		// The first phase timer is armed before Start returns, so a test
		// clock advanced right after Start always finds it registered.
		timer := s.clk.Timer(profile.ScanDuration)
		groutine.Go(nil, "scan-phase-loop", func(context.Context) {
			s.run(timer, stopCh, doneCh)
		})
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"duty_cycling":  profile.DutyCycling,
		"scan_duration": profile.ScanDuration,
		"rest_duration": profile.RestDuration,
		"min_rssi":      profile.MinRSSI,
	}).Info("Scan started")

	s.emitStatus(true)
	return nil
}

// Stop cancels phase timers, closes any open subscription, and returns the
// scheduler to Idle. Safe from any state, idempotent, and synchronous: once
// Stop returns no further observation is processed and no timer fires.
func (s *Scheduler) Stop() {
	s.accepting.Store(false)

	s.mu.Lock()
	if s.state == Idle || s.state == Stopping {
		s.mu.Unlock()
		return
	}
	s.state = Stopping
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	// Phase timers are cancelled as a unit: the loop owns them and must
	// exit before the subscription is touched.
	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	s.mu.Lock()
	if s.subscribed {
		if err := s.src.Unsubscribe(); err != nil {
			s.logger.WithError(err).Warn("Unsubscribe failed during stop")
		}
		s.subscribed = false
	}
	s.state = Idle
	s.mu.Unlock()

	s.logger.Info("Scan stopped")
	s.emitStatus(false)
}

// SetProfile swaps the battery profile wholesale. The profile is validated
// synchronously; on rejection the previous profile is retained. A valid
// profile takes effect at the next phase boundary, never interrupting an
// in-progress phase.
func (s *Scheduler) SetProfile(p BatteryProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"scan_duration": p.ScanDuration,
		"rest_duration": p.RestDuration,
		"min_rssi":      p.MinRSSI,
	}).Debug("Battery profile updated")
	return nil
}

// SetLifecycle swaps to the stock profile for the given lifecycle state
// without restarting the session: only the duty-cycle timing and threshold
// change, at the next phase boundary.
func (s *Scheduler) SetLifecycle(l Lifecycle) {
	s.logger.WithField("lifecycle", l.String()).Info("Lifecycle transition")
	_ = s.SetProfile(ProfileFor(l)) // stock profiles always validate
}

// State returns the current state machine position.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Scanning reports whether a session is in progress (active or resting).
func (s *Scheduler) Scanning() bool {
	switch s.State() {
	case Initializing, ActiveScan, Resting:
		return true
	default:
		return false
	}
}

// Profile returns the profile currently configured.
func (s *Scheduler) Profile() BatteryProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// LastError returns the diagnostic from the most recent failure.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// run is the phase loop. It alternates ActiveScan and Resting until stopCh
// closes, re-reading the profile at every boundary so reconfiguration lands
// between phases.
func (s *Scheduler) run(timer *clock.Timer, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer func() { timer.Stop() }()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
			next, ok := s.advancePhase()
			if !ok {
				return
			}
			timer = next
		}
	}
}

// advancePhase flips ActiveScan<->Resting and returns the next phase timer.
// The timer is armed before the new state is published, so an observer that
// has seen the state change can advance a test clock without racing the
// re-arm. ok is false when the loop must exit: stop won the race against the
// timer, or reopening the subscription failed fatally.
func (s *Scheduler) advancePhase() (next *clock.Timer, ok bool) {
	s.mu.Lock()

	profile := s.profile
	s.minRSSI.Store(int32(profile.MinRSSI))

	switch s.state {
	case ActiveScan:
		if s.subscribed {
			if err := s.src.Unsubscribe(); err != nil {
				s.logger.WithError(err).Warn("Unsubscribe failed at phase boundary")
			}
			s.subscribed = false
		}
		timer := s.clk.Timer(profile.RestDuration)
		s.state = Resting
		s.mu.Unlock()

		s.logger.WithField("rest_duration", profile.RestDuration).Debug("Entering rest phase")
		return timer, true

	case Resting:
		if err := s.src.Subscribe(s.filter, s.deliver, s.sourceFault); err != nil {
			s.state = Failed
			s.lastErr = err
			s.accepting.Store(false)
			s.mu.Unlock()

			wrapped := fmt.Errorf("failed to reopen observation stream: %w", err)
			s.emitError(wrapped)
			return nil, false
		}
		s.subscribed = true
		timer := s.clk.Timer(profile.ScanDuration)
		s.state = ActiveScan
		s.mu.Unlock()

		s.logger.WithField("scan_duration", profile.ScanDuration).Debug("Entering active scan phase")
		return timer, true

	default:
		// Stop won the race; it finishes the teardown.
		s.mu.Unlock()
		return nil, false
	}
}

// deliver is the subscription callback: gate on the accept flag, discard
// below-threshold observations pre-merge, then hand off.
func (s *Scheduler) deliver(obs observation.Observation) {
	if !s.accepting.Load() {
		return
	}
	if obs.RSSI < int(s.minRSSI.Load()) {
		return
	}
	s.handler(obs)
}

// sourceFault handles mid-scan errors from the source. Transient by
// definition: logged and surfaced, but the duty cycle continues into its
// next phase.
func (s *Scheduler) sourceFault(err error) {
	s.logger.WithError(err).Warn("Transient scan fault")
	s.emitError(err)
}

func (s *Scheduler) emitStatus(scanning bool) {
	if s.onStatus != nil {
		s.onStatus(scanning)
	}
}

func (s *Scheduler) emitError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
