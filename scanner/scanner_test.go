package scanner_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/srg/blewatch/internal/observation"
	"github.com/srg/blewatch/internal/registry"
	"github.com/srg/blewatch/internal/testutils"
	"github.com/srg/blewatch/scanner"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// waitForState polls until the scheduler publishes the expected state. Phase
// timers are armed before the state is published, so once the state is
// observed the next timer is registered and the mock clock can advance again.
func waitForState(t *testing.T, sched *scanner.Scheduler, want scanner.State) {
	t.Helper()
	require.Eventually(t, func() bool { return sched.State() == want },
		time.Second, time.Millisecond, "scheduler did not reach %v", want)
}

func testProfile() scanner.BatteryProfile {
	p := scanner.DefaultProfile()
	p.ScanDuration = 10 * time.Second
	p.RestDuration = 5 * time.Second
	return p
}

func newScheduler(t *testing.T, src *testutils.MockSource, opts ...scanner.Option) (*scanner.Scheduler, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()

	all := append([]scanner.Option{
		scanner.WithClock(mock),
		scanner.WithLogger(quietLogger()),
		scanner.WithProfile(testProfile()),
	}, opts...)

	return scanner.New(src, nil, all...), mock
}

func TestStartOpensSubscriptionAndEntersActiveScan(t *testing.T) {
	src := testutils.NewMockSource()
	sched, _ := newScheduler(t, src)
	defer sched.Stop()

	require.NoError(t, sched.Start(observation.Filter{AllowDuplicates: true}))
	require.Equal(t, scanner.ActiveScan, sched.State())
	require.Equal(t, 1, src.SubscribeCalls())
	require.True(t, src.LastFilter().AllowDuplicates)
}

func TestStartWhileRunningIsRejectedWithoutSecondSubscription(t *testing.T) {
	src := testutils.NewMockSource()
	sched, _ := newScheduler(t, src)
	defer sched.Stop()

	require.NoError(t, sched.Start(observation.Filter{}))

	err := sched.Start(observation.Filter{})
	require.ErrorIs(t, err, scanner.ErrAlreadyRunning)
	require.Equal(t, 1, src.SubscribeCalls(), "no overlapping scan requests")
}

func TestStartFailsWhenSourceNotReady(t *testing.T) {
	src := testutils.NewMockSource()
	src.NotReady = true

	var gotErr error
	sched, _ := newScheduler(t, src, scanner.WithErrorFunc(func(err error) { gotErr = err }))

	err := sched.Start(observation.Filter{})
	require.ErrorIs(t, err, scanner.ErrNotReady)
	require.Equal(t, scanner.Failed, sched.State())
	require.ErrorIs(t, gotErr, scanner.ErrNotReady)
	require.Zero(t, src.SubscribeCalls())

	// Explicit retry from the error state recovers.
	src.NotReady = false
	require.NoError(t, sched.Start(observation.Filter{}))
	require.Equal(t, scanner.ActiveScan, sched.State())
	sched.Stop()
}

func TestStartFailsWhenSubscribeFails(t *testing.T) {
	src := testutils.NewMockSource()
	src.SubscribeErr = errors.New("radio busy")

	sched, _ := newScheduler(t, src)
	err := sched.Start(observation.Filter{})
	require.Error(t, err)
	require.Equal(t, scanner.Failed, sched.State())
	require.Error(t, sched.LastError())
}

func TestDutyCycleAlternatesPhases(t *testing.T) {
	src := testutils.NewMockSource()
	sched, mock := newScheduler(t, src)
	defer sched.Stop()

	require.NoError(t, sched.Start(observation.Filter{}))

	// t=10s: active window elapses, radio turns off.
	mock.Add(10 * time.Second)
	waitForState(t, sched, scanner.Resting)
	require.Equal(t, 1, src.UnsubscribeCalls())
	require.False(t, src.Open())

	// t=15s: rest elapses, subscription reopens.
	mock.Add(5 * time.Second)
	waitForState(t, sched, scanner.ActiveScan)
	require.Equal(t, 2, src.SubscribeCalls())
	require.True(t, src.Open())

	// The alternation continues indefinitely.
	mock.Add(10 * time.Second)
	waitForState(t, sched, scanner.Resting)
	mock.Add(5 * time.Second)
	waitForState(t, sched, scanner.ActiveScan)
	require.Equal(t, 3, src.SubscribeCalls())
}

func TestContinuousModeNeverRests(t *testing.T) {
	src := testutils.NewMockSource()
	profile := testProfile()
	profile.DutyCycling = false

	sched, mock := newScheduler(t, src, scanner.WithProfile(profile))
	defer sched.Stop()

	require.NoError(t, sched.Start(observation.Filter{}))

	// No phase loop runs in continuous mode, so no timer ever fires.
	mock.Add(time.Hour)
	require.Equal(t, scanner.ActiveScan, sched.State())
	require.Equal(t, 1, src.SubscribeCalls())
	require.Zero(t, src.UnsubscribeCalls())
}

func TestStopFromEveryState(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		sched, _ := newScheduler(t, testutils.NewMockSource())
		sched.Stop()
		require.Equal(t, scanner.Idle, sched.State())
	})

	t.Run("active scan", func(t *testing.T) {
		src := testutils.NewMockSource()
		sched, mock := newScheduler(t, src)
		require.NoError(t, sched.Start(observation.Filter{}))

		sched.Stop()
		require.Equal(t, scanner.Idle, sched.State())
		require.Equal(t, 1, src.UnsubscribeCalls())

		// Zero pending timers: time can pass, nothing transitions.
		mock.Add(time.Hour)
		require.Equal(t, scanner.Idle, sched.State())
		require.Equal(t, 1, src.SubscribeCalls())
	})

	t.Run("resting", func(t *testing.T) {
		src := testutils.NewMockSource()
		sched, mock := newScheduler(t, src)
		require.NoError(t, sched.Start(observation.Filter{}))

		mock.Add(10 * time.Second)
		waitForState(t, sched, scanner.Resting)

		sched.Stop()
		require.Equal(t, scanner.Idle, sched.State())
		require.Equal(t, 1, src.UnsubscribeCalls(), "no second unsubscribe for a closed subscription")

		mock.Add(time.Hour)
		require.Equal(t, scanner.Idle, sched.State())
		require.Equal(t, 1, src.SubscribeCalls())
	})

	t.Run("error", func(t *testing.T) {
		src := testutils.NewMockSource()
		src.NotReady = true
		sched, _ := newScheduler(t, src)
		require.Error(t, sched.Start(observation.Filter{}))

		sched.Stop()
		require.Equal(t, scanner.Idle, sched.State())
	})
}

func TestStopIsIdempotent(t *testing.T) {
	src := testutils.NewMockSource()
	sched, _ := newScheduler(t, src)
	require.NoError(t, sched.Start(observation.Filter{}))

	sched.Stop()
	sched.Stop()
	require.Equal(t, scanner.Idle, sched.State())
	require.Equal(t, 1, src.UnsubscribeCalls())
}

func TestNoObservationProcessedAfterStop(t *testing.T) {
	src := testutils.NewMockSource()

	var mu sync.Mutex
	var seen []string
	handler := func(obs observation.Observation) {
		mu.Lock()
		seen = append(seen, obs.ID)
		mu.Unlock()
	}

	mock := clock.NewMock()
	sched := scanner.New(src, handler,
		scanner.WithClock(mock),
		scanner.WithLogger(quietLogger()),
		scanner.WithProfile(testProfile()))

	require.NoError(t, sched.Start(observation.Filter{}))
	src.Push(testutils.NewObservation("A").Build())
	sched.Stop()

	// A misbehaving source delivering after unsubscribe must be ignored.
	src.Push(testutils.NewObservation("B").Build())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"A"}, seen)
}

func TestDutyCycleScenarioWithThresholdFiltering(t *testing.T) {
	// scanDuration=10s, restDuration=5s, dutyCycling=true, default minRSSI -85:
	// "A" at t=2s (-50 dBm) lands in the registry, "B" (-90 dBm) is discarded
	// pre-merge, and at t=10s the source is unsubscribed exactly once.
	src := testutils.NewMockSource()
	reg := registry.New(quietLogger())

	mock := clock.NewMock()
	sched := scanner.New(src, func(obs observation.Observation) { reg.Merge(obs) },
		scanner.WithClock(mock),
		scanner.WithLogger(quietLogger()),
		scanner.WithProfile(testProfile()))
	defer sched.Stop()

	require.NoError(t, sched.Start(observation.Filter{AllowDuplicates: true}))

	mock.Add(2 * time.Second)
	src.Push(testutils.NewObservation("A").WithRSSI(-50).Build())
	src.Push(testutils.NewObservation("B").WithRSSI(-90).Build())

	require.Equal(t, 1, reg.Len())
	_, hasA := reg.Get("A")
	require.True(t, hasA)
	_, hasB := reg.Get("B")
	require.False(t, hasB, "below-threshold observation discarded pre-merge")

	mock.Add(8 * time.Second) // t=10s
	waitForState(t, sched, scanner.Resting)
	require.Equal(t, 1, src.UnsubscribeCalls())
}

func TestSetProfileValidatesSynchronously(t *testing.T) {
	sched, _ := newScheduler(t, testutils.NewMockSource())

	bad := testProfile()
	bad.ScanDuration = -time.Second
	require.ErrorIs(t, sched.SetProfile(bad), scanner.ErrInvalidProfile)

	// Previous configuration retained.
	require.Equal(t, 10*time.Second, sched.Profile().ScanDuration)
}

func TestSetProfileTakesEffectAtNextPhaseBoundary(t *testing.T) {
	src := testutils.NewMockSource()
	sched, mock := newScheduler(t, src)
	defer sched.Stop()

	require.NoError(t, sched.Start(observation.Filter{}))

	// Swap mid-active-phase: the in-progress 10s window must not truncate.
	next := testProfile()
	next.RestDuration = 30 * time.Second
	require.NoError(t, sched.SetProfile(next))

	mock.Add(9 * time.Second)
	require.Equal(t, scanner.ActiveScan, sched.State(), "in-progress phase not interrupted")

	mock.Add(time.Second)
	waitForState(t, sched, scanner.Resting)

	// The new rest duration governs the rest phase that just began.
	mock.Add(5 * time.Second)
	require.Equal(t, scanner.Resting, sched.State(), "old rest duration no longer applies")
	mock.Add(25 * time.Second)
	waitForState(t, sched, scanner.ActiveScan)
}

func TestLifecycleSwapDoesNotRestartSession(t *testing.T) {
	src := testutils.NewMockSource()
	sched, mock := newScheduler(t, src)
	defer sched.Stop()

	require.NoError(t, sched.Start(observation.Filter{}))

	sched.SetLifecycle(scanner.Background)
	require.Equal(t, scanner.ActiveScan, sched.State())
	require.Equal(t, 1, src.SubscribeCalls(), "reconfiguration must not stop and restart")
	require.Equal(t, scanner.BackgroundProfile(), sched.Profile())

	// Background threshold applies from the next phase on.
	mock.Add(10 * time.Second)
	waitForState(t, sched, scanner.Resting)

	sched.SetLifecycle(scanner.Foreground)
	require.Equal(t, scanner.DefaultProfile(), sched.Profile())
}

func TestTransientFaultDoesNotStopScheduler(t *testing.T) {
	src := testutils.NewMockSource()

	var mu sync.Mutex
	var faults []error
	sched, mock := newScheduler(t, src, scanner.WithErrorFunc(func(err error) {
		mu.Lock()
		faults = append(faults, err)
		mu.Unlock()
	}))
	defer sched.Stop()

	require.NoError(t, sched.Start(observation.Filter{}))

	src.Fault(errors.New("adapter glitch"))

	require.Equal(t, scanner.ActiveScan, sched.State())
	mu.Lock()
	require.Len(t, faults, 1)
	mu.Unlock()

	// The duty cycle keeps going.
	mock.Add(10 * time.Second)
	waitForState(t, sched, scanner.Resting)
}

func TestBackgroundProfileIsStricter(t *testing.T) {
	fg := scanner.DefaultProfile()
	bg := scanner.BackgroundProfile()

	require.Less(t, bg.ScanDuration, fg.ScanDuration)
	require.Greater(t, bg.RestDuration, fg.RestDuration)
	require.Greater(t, bg.MinRSSI, fg.MinRSSI, "stricter threshold discards weaker signals")
}

func TestProfileValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*scanner.BatteryProfile)
		ok     bool
	}{
		{"default", func(*scanner.BatteryProfile) {}, true},
		{"zero scan duration", func(p *scanner.BatteryProfile) { p.ScanDuration = 0 }, false},
		{"negative rest", func(p *scanner.BatteryProfile) { p.RestDuration = -time.Second }, false},
		{"rest ignored when continuous", func(p *scanner.BatteryProfile) { p.DutyCycling = false; p.RestDuration = 0 }, true},
		{"positive min RSSI", func(p *scanner.BatteryProfile) { p.MinRSSI = 10 }, false},
		{"negative base interval", func(p *scanner.BatteryProfile) { p.ForegroundInterval = -time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := scanner.DefaultProfile()
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, scanner.ErrInvalidProfile)
			}
		})
	}
}
