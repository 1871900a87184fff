package store

import (
	"github.com/srg/blewatch/internal/aggregate"
	"github.com/srg/blewatch/internal/registry"
	"github.com/srg/blewatch/internal/session"
)

// nopGateway discards all writes and answers queries with nothing. Used when
// the caller runs without a history database.
type nopGateway struct{}

// NewNop returns a Gateway that persists nothing.
func NewNop() Gateway { return nopGateway{} }

func (nopGateway) UpsertDevice(registry.DeviceRecord) error            { return nil }
func (nopGateway) InsertDetection(string, registry.DeviceRecord) error { return nil }
func (nopGateway) UpsertSession(session.Session) error                 { return nil }
func (nopGateway) InsertDataPoint(aggregate.DataPoint) error           { return nil }

func (nopGateway) DataPoints(DataPointQuery) ([]aggregate.DataPoint, error) { return nil, nil }
func (nopGateway) RecentSessions(int) ([]session.Session, error)            { return nil, nil }

func (nopGateway) Close() error { return nil }
