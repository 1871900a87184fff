// Package store is the persistence boundary: a durable, at-least-once sink
// for device records, scan sessions, raw detections, and aggregate data
// points, plus the read queries the history surface needs. Write failures
// are the caller's to log and swallow; the scan path never fails because a
// historical write did.
package store

import (
	"time"

	"github.com/srg/blewatch/internal/aggregate"
	"github.com/srg/blewatch/internal/registry"
	"github.com/srg/blewatch/internal/session"
)

// DataPointQuery bounds a data-point read. Nil times are open-ended; a
// non-positive limit means unlimited.
type DataPointQuery struct {
	Start *time.Time
	End   *time.Time
	Limit int
}

// Gateway is the durable store contract. UpsertDevice and UpsertSession are
// idempotent keyed by their natural ids; InsertDetection and InsertDataPoint
// are append-only.
type Gateway interface {
	UpsertDevice(rec registry.DeviceRecord) error
	InsertDetection(sessionID string, rec registry.DeviceRecord) error
	UpsertSession(s session.Session) error
	InsertDataPoint(p aggregate.DataPoint) error

	// DataPoints returns stored points ascending by timestamp.
	DataPoints(q DataPointQuery) ([]aggregate.DataPoint, error)

	// RecentSessions returns stored sessions descending by start time.
	RecentSessions(limit int) ([]session.Session, error)

	Close() error
}
