package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srg/blewatch/internal/session"
)

// fakeNow returns a controllable clock function.
func fakeNow(start time.Time) (func() time.Time, func(time.Duration)) {
	current := start
	return func() time.Time { return current },
		func(d time.Duration) { current = current.Add(d) }
}

func TestStartAssignsTimeDerivedUniqueID(t *testing.T) {
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	now, _ := fakeNow(start)
	tracker := session.NewTracker(now)

	sess, err := tracker.Start(session.Config{})
	require.NoError(t, err)
	require.Contains(t, sess.ID, "1787572800000-", "id derives from the start time")
	require.Equal(t, start, sess.StartTime)
	require.True(t, sess.IsActive())
	require.Zero(t, sess.DevicesDiscovered)
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	tracker := session.NewTracker(nil)

	first, err := tracker.Start(session.Config{})
	require.NoError(t, err)

	again, err := tracker.Start(session.Config{})
	require.ErrorIs(t, err, session.ErrSessionActive)
	require.Equal(t, first.ID, again.ID, "the running session is returned unchanged")
}

func TestEndFreezesSummary(t *testing.T) {
	now, advance := fakeNow(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	tracker := session.NewTracker(now)

	started, err := tracker.Start(session.Config{ScanDuration: 10 * time.Second})
	require.NoError(t, err)

	advance(45 * time.Second)
	ended, err := tracker.End([]string{"C", "A", "B"})
	require.NoError(t, err)

	require.Equal(t, started.ID, ended.ID)
	require.False(t, ended.IsActive())
	require.Equal(t, 3, ended.DevicesDiscovered)
	require.Equal(t, []string{"A", "B", "C"}, ended.DeviceIDs)
	require.Equal(t, 45*time.Second, ended.Duration)
	require.Equal(t, ended.EndTime.Sub(ended.StartTime), ended.Duration)
}

func TestEndWithoutActiveSession(t *testing.T) {
	tracker := session.NewTracker(nil)
	_, err := tracker.End(nil)
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestDurationLiveThenFrozen(t *testing.T) {
	now, advance := fakeNow(time.Now())
	tracker := session.NewTracker(now)

	_, err := tracker.Start(session.Config{})
	require.NoError(t, err)

	advance(7 * time.Second)
	require.Equal(t, 7*time.Second, tracker.Duration(), "live duration while active")

	advance(3 * time.Second)
	_, err = tracker.End(nil)
	require.NoError(t, err)

	advance(time.Minute)
	require.Equal(t, 10*time.Second, tracker.Duration(), "frozen after end")
}

func TestRestartAfterEnd(t *testing.T) {
	tracker := session.NewTracker(nil)

	first, err := tracker.Start(session.Config{})
	require.NoError(t, err)
	_, err = tracker.End([]string{"A"})
	require.NoError(t, err)

	second, err := tracker.Start(session.Config{})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.True(t, second.IsActive())
}
