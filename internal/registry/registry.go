// Package registry owns the in-memory deduplicated device state. Observations
// arrive keyed by device identifier; the registry merges them into immutable
// DeviceRecord values and notifies a listener when a previously unseen
// identifier appears.
package registry

import (
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blewatch/internal/observation"
)

// DefaultRecentWindow is the last-seen horizon for the recently-active
// predicate.
const DefaultRecentWindow = 30 * time.Second

// Registry maps device identifiers to their latest merged record.
//
// Concurrency model: merges serialize on a single mutex so a read-modify-write
// for one identifier can never interleave with another (a lost detection-count
// increment is the failure mode this prevents). Reads go through the lock-free
// hashmap and never take the lock.
type Registry struct {
	devices *hashmap.Map[string, DeviceRecord]
	logger  *logrus.Logger

	mergeMu sync.Mutex

	// recentWindow is DefaultRecentWindow unless overridden for tests.
	recentWindow time.Duration

	// onNew, when set, is invoked with the new registry size on first sight
	// of an identifier. It is not invoked on refresh merges.
	onNew func(count int)
}

// Option configures a Registry.
type Option func(*Registry)

// WithRecentWindow overrides the recently-active horizon.
func WithRecentWindow(d time.Duration) Option {
	return func(r *Registry) { r.recentWindow = d }
}

// WithNewDeviceFunc registers the count-changed notification, fired only when
// an identifier is seen for the first time.
func WithNewDeviceFunc(f func(count int)) Option {
	return func(r *Registry) { r.onNew = f }
}

// New creates an empty registry.
func New(logger *logrus.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logrus.New()
	}

	r := &Registry{
		devices:      hashmap.New[string, DeviceRecord](),
		logger:       logger,
		recentWindow: DefaultRecentWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Merge folds one observation into the registry and returns the resulting
// record plus whether the identifier was new. The operation is total: it
// cannot fail, it only creates or replaces.
func (r *Registry) Merge(obs observation.Observation) (DeviceRecord, bool) {
	now := obs.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	r.mergeMu.Lock()
	prev, exists := r.devices.Get(obs.ID)

	var rec DeviceRecord
	if exists {
		rec = prev.merged(obs, now)
	} else {
		rec = newRecord(obs, now)
	}
	r.devices.Set(obs.ID, rec)
	count := r.devices.Len()
	r.mergeMu.Unlock()

	if !exists {
		r.logger.WithFields(logrus.Fields{
			"device": rec.Name,
			"id":     rec.ID,
			"rssi":   rec.RSSI,
		}).Info("Discovered new device")

		if r.onNew != nil {
			r.onNew(count)
		}
	}

	return rec, !exists
}

// Get returns the current record for an identifier.
func (r *Registry) Get(id string) (DeviceRecord, bool) {
	return r.devices.Get(id)
}

// Snapshot returns a defensive copy of the full registry state. Repeated
// calls without intervening merges return equal contents; reading never
// mutates the registry.
func (r *Registry) Snapshot() []DeviceRecord {
	recs := make([]DeviceRecord, 0, r.devices.Len())
	r.devices.Range(func(_ string, rec DeviceRecord) bool {
		recs = append(recs, rec)
		return true
	})
	return recs
}

// IDs returns the set of known identifiers.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, r.devices.Len())
	r.devices.Range(func(id string, _ DeviceRecord) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Len returns the number of distinct devices.
func (r *Registry) Len() int {
	return r.devices.Len()
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mergeMu.Lock()
	r.devices = hashmap.New[string, DeviceRecord]()
	r.mergeMu.Unlock()

	r.logger.Debug("Device registry cleared")
}

// RecentlyActive reports whether a record was seen within the recent window
// of now. Pure; now is passed in so tests control time.
func (r *Registry) RecentlyActive(rec DeviceRecord, now time.Time) bool {
	return now.Sub(rec.LastSeen) <= r.recentWindow
}
