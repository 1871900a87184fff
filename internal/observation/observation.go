// Package observation defines the raw radio-advertisement event type and the
// boundary interface to the platform scanning primitive. The engine treats the
// source as an unreliable push stream: duplicate-producing, unordered, and
// unbounded in rate.
package observation

import "time"

// Observation is one advertisement sighting of a device at a point in time.
type Observation struct {
	// ID is the platform-assigned device identifier, stable for the process
	// lifetime and unique per physical radio address.
	ID string

	// RSSI is the received signal strength in dBm (more negative = weaker).
	RSSI int

	// LocalName is the name advertised by the device itself, empty when the
	// advertisement carried none.
	LocalName string

	// PlatformName is the generic name assigned by the platform stack.
	PlatformName string

	ServiceUUIDs     []string
	ManufacturerData []byte
	ServiceData      map[string][]byte
	Connectable      bool

	// TxPower is the advertised transmit power, nil when not present.
	TxPower *int

	Timestamp time.Time
}

// Filter restricts what the source delivers. Zero value means "everything".
type Filter struct {
	// ServiceUUIDs limits delivery to devices advertising at least one of the
	// listed services. Empty means no service filtering.
	ServiceUUIDs []string

	// AllowDuplicates requests repeated advertisements for already-seen
	// devices. The engine relies on duplicates to refresh RSSI and last-seen,
	// so this is normally true.
	AllowDuplicates bool

	// ScanMode is an opaque platform hint (e.g. low-latency vs low-power);
	// sources that have no such knob ignore it.
	ScanMode string
}

// Handler receives observations pushed by a Source. Implementations must not
// assume ordering or uniqueness.
type Handler func(Observation)

// Source is the platform radio-scanning primitive. Exactly one subscription
// may be open at a time; the duty-cycle scheduler enforces this.
type Source interface {
	// Ready reports whether the radio is powered on and authorized. A false
	// return is fatal to the current start attempt.
	Ready() bool

	// Subscribe opens the advertisement stream. It returns once the stream is
	// established; observations are delivered on the source's own goroutine.
	// Errors after establishment are delivered via errh and are transient
	// from the scheduler's point of view.
	Subscribe(filter Filter, h Handler, errh func(error)) error

	// Unsubscribe closes the stream. It must not return until delivery has
	// stopped: no call to the handler may happen after Unsubscribe returns.
	// Safe to call when no subscription is open.
	Unsubscribe() error
}
