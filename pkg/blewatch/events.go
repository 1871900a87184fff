package blewatch

import (
	"github.com/srg/blewatch/internal/aggregate"
	"github.com/srg/blewatch/internal/registry"
)

// EventType tags engine events for the presentation layer.
type EventType int

const (
	// EventDeviceDiscovered fires on first sight of an identifier.
	EventDeviceDiscovered EventType = iota

	// EventDeviceUpdated fires on a refresh merge of a known identifier.
	EventDeviceUpdated

	// EventScanStatus fires when scanning starts or stops.
	EventScanStatus

	// EventScanError carries unavailable-radio and transient scan faults.
	// Persistence faults never appear here.
	EventScanError

	// EventAggregateTick carries each captured statistics sample.
	EventAggregateTick
)

func (t EventType) String() string {
	switch t {
	case EventDeviceDiscovered:
		return "device_discovered"
	case EventDeviceUpdated:
		return "device_updated"
	case EventScanStatus:
		return "scan_status"
	case EventScanError:
		return "scan_error"
	case EventAggregateTick:
		return "aggregate_tick"
	default:
		return "unknown"
	}
}

// Event is one typed notification on the engine's event surface. Only the
// fields relevant to the Type are populated.
type Event struct {
	Type EventType

	// Device is set for discovered/updated events.
	Device *registry.DeviceRecord

	// DeviceCount is the registry size after a discovery.
	DeviceCount int

	// Scanning is set for scan-status events.
	Scanning bool

	// Err is set for scan-error events.
	Err error

	// Stats is set for aggregate-tick events.
	Stats *aggregate.Stats
}
