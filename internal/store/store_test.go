package store_test

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/srg/blewatch/internal/aggregate"
	"github.com/srg/blewatch/internal/registry"
	"github.com/srg/blewatch/internal/session"
	"github.com/srg/blewatch/internal/store"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func openTestGateway(t *testing.T) *store.SQLiteGateway {
	t.Helper()
	gw, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestUpsertDeviceIsIdempotentByID(t *testing.T) {
	gw := openTestGateway(t)
	now := time.Now().Truncate(time.Millisecond)

	rec := registry.DeviceRecord{
		ID:             "AA:BB",
		Name:           "Thermo",
		RSSI:           -50,
		MinRSSI:        -60,
		MaxRSSI:        -40,
		ServiceUUIDs:   []string{"180f"},
		FirstSeen:      now,
		LastSeen:       now,
		DetectionCount: 1,
	}
	require.NoError(t, gw.UpsertDevice(rec))

	rec.RSSI = -45
	rec.DetectionCount = 2
	rec.LastSeen = now.Add(time.Second)
	require.NoError(t, gw.UpsertDevice(rec), "second write for the same id replaces, not duplicates")
}

func TestInsertDetectionIsAppendOnly(t *testing.T) {
	gw := openTestGateway(t)
	rec := registry.DeviceRecord{ID: "AA:BB", RSSI: -50, LastSeen: time.Now()}

	require.NoError(t, gw.InsertDetection("sess-1", rec))
	require.NoError(t, gw.InsertDetection("sess-1", rec), "every sighting gets its own row")
}

func TestSessionRoundTrip(t *testing.T) {
	gw := openTestGateway(t)
	start := time.Now().Truncate(time.Millisecond)

	active := session.Session{
		ID:        "100-abc",
		StartTime: start,
		Config:    session.Config{ScanDuration: 10 * time.Second, ScanMode: "balanced"},
	}
	require.NoError(t, gw.UpsertSession(active))

	got, err := gw.RecentSessions(0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].IsActive(), "no end time while the session runs")

	ended := active
	ended.EndTime = start.Add(45 * time.Second)
	ended.Duration = 45 * time.Second
	ended.DevicesDiscovered = 2
	ended.DeviceIDs = []string{"A", "B"}
	require.NoError(t, gw.UpsertSession(ended))

	got, err = gw.RecentSessions(0)
	require.NoError(t, err)
	require.Len(t, got, 1, "stop updates the row written at start")
	require.False(t, got[0].IsActive())
	require.Equal(t, 45*time.Second, got[0].Duration)
	require.Equal(t, 2, got[0].DevicesDiscovered)
	require.Equal(t, []string{"A", "B"}, got[0].DeviceIDs)
	require.Equal(t, 10*time.Second, got[0].Config.ScanDuration)
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	gw := openTestGateway(t)
	base := time.Now().Truncate(time.Millisecond)

	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, gw.UpsertSession(session.Session{
			ID:        id,
			StartTime: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := gw.RecentSessions(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "third", got[0].ID)
	require.Equal(t, "second", got[1].ID)
}

func TestDataPointsAscendingWithRangeAndLimit(t *testing.T) {
	gw := openTestGateway(t)
	base := time.Now().Truncate(time.Millisecond)

	// Inserted out of order on purpose.
	for _, offset := range []time.Duration{20 * time.Second, 0, 10 * time.Second, 30 * time.Second} {
		require.NoError(t, gw.InsertDataPoint(aggregate.DataPoint{
			Timestamp:   base.Add(offset),
			DeviceCount: int(offset / (10 * time.Second)),
			AvgRSSI:     floatPtr(-60),
			MinRSSI:     intPtr(-80),
			MaxRSSI:     intPtr(-40),
		}))
	}

	all, err := gw.DataPoints(store.DataPointQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		require.True(t, !all[i].Timestamp.Before(all[i-1].Timestamp), "ascending by timestamp")
	}

	from := base.Add(5 * time.Second)
	to := base.Add(25 * time.Second)
	ranged, err := gw.DataPoints(store.DataPointQuery{Start: &from, End: &to})
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	require.Equal(t, 1, ranged[0].DeviceCount)
	require.Equal(t, 2, ranged[1].DeviceCount)

	limited, err := gw.DataPoints(store.DataPointQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, 0, limited[0].DeviceCount)
}

func TestDataPointNullRSSIRoundTrip(t *testing.T) {
	gw := openTestGateway(t)

	require.NoError(t, gw.InsertDataPoint(aggregate.DataPoint{
		Timestamp:    time.Now().Truncate(time.Millisecond),
		DeviceCount:  0,
		ScanDuration: 10 * time.Second,
	}))

	got, err := gw.DataPoints(store.DataPointQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Nil(t, got[0].AvgRSSI, "empty capture stays NULL, never zero")
	require.Nil(t, got[0].MinRSSI)
	require.Nil(t, got[0].MaxRSSI)
	require.Equal(t, 10*time.Second, got[0].ScanDuration)
}

// recordingGateway captures writes for AsyncWriter assertions.
type recordingGateway struct {
	mu         sync.Mutex
	devices    []registry.DeviceRecord
	detections []string
	sessions   []session.Session
	points     []aggregate.DataPoint
	failWith   error
}

func (g *recordingGateway) UpsertDevice(rec registry.DeviceRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return g.failWith
	}
	g.devices = append(g.devices, rec)
	return nil
}

func (g *recordingGateway) InsertDetection(sessionID string, rec registry.DeviceRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detections = append(g.detections, sessionID+"/"+rec.ID)
	return nil
}

func (g *recordingGateway) UpsertSession(s session.Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions = append(g.sessions, s)
	return nil
}

func (g *recordingGateway) InsertDataPoint(p aggregate.DataPoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.points = append(g.points, p)
	return nil
}

func (g *recordingGateway) DataPoints(store.DataPointQuery) ([]aggregate.DataPoint, error) {
	return nil, nil
}

func (g *recordingGateway) RecentSessions(int) ([]session.Session, error) { return nil, nil }

func (g *recordingGateway) Close() error { return nil }

func TestAsyncWriterFlushesOnClose(t *testing.T) {
	gw := &recordingGateway{}
	w := store.NewAsyncWriter(gw, quietLogger(), 16)

	w.UpsertDevice(registry.DeviceRecord{ID: "A"})
	w.InsertDetection("sess-1", registry.DeviceRecord{ID: "A"})
	w.UpsertSession(session.Session{ID: "sess-1"})
	w.InsertDataPoint(aggregate.DataPoint{DeviceCount: 1})
	w.Close()

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Len(t, gw.devices, 1, "queued writes land before Close returns")
	require.Equal(t, []string{"sess-1/A"}, gw.detections)
	require.Len(t, gw.sessions, 1)
	require.Len(t, gw.points, 1)
}

func TestAsyncWriterSwallowsWriteErrors(t *testing.T) {
	gw := &recordingGateway{failWith: errors.New("disk full")}
	w := store.NewAsyncWriter(gw, quietLogger(), 16)

	w.UpsertDevice(registry.DeviceRecord{ID: "A"})
	w.Close()

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Empty(t, gw.devices, "the failed write is dropped, not retried")
}

func TestAsyncWriterCloseIsIdempotent(t *testing.T) {
	w := store.NewAsyncWriter(&recordingGateway{}, quietLogger(), 16)
	w.UpsertDevice(registry.DeviceRecord{ID: "A"})
	w.Close()
	w.Close()

	// Writes after close are ignored, not panicking on a closed queue.
	w.UpsertDevice(registry.DeviceRecord{ID: "B"})
}
