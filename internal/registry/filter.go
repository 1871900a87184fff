package registry

import (
	"sort"
	"strings"
	"time"
)

// SortKey selects the projection ordering.
type SortKey int

const (
	SortByRSSI SortKey = iota
	SortByName
	SortByLastSeen
	SortByDetections
)

// SortDirection selects ascending or descending order.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

// View describes a filtered, sorted projection of a registry snapshot. The
// zero value selects everything sorted by signal strength, strongest first.
type View struct {
	// NameContains keeps records whose display name contains the substring,
	// case-insensitively. Empty keeps everything.
	NameContains string

	// MinRSSI drops records weaker than the threshold. Nil disables.
	MinRSSI *int

	// DeviceType keeps records classified with exactly this label. Empty
	// keeps everything.
	DeviceType string

	// RecentOnly keeps records seen within the recent window of Now.
	RecentOnly bool

	SortBy    SortKey
	Direction SortDirection
}

// Project applies the view to a snapshot. Pure: the snapshot slice is not
// reordered and no record is mutated. Sorting is stable, so records with
// equal keys keep their snapshot order.
func (r *Registry) Project(snapshot []DeviceRecord, v View, now time.Time) []DeviceRecord {
	out := make([]DeviceRecord, 0, len(snapshot))

	needle := strings.ToLower(v.NameContains)
	for _, rec := range snapshot {
		if needle != "" && !strings.Contains(strings.ToLower(rec.Name), needle) {
			continue
		}
		if v.MinRSSI != nil && rec.RSSI < *v.MinRSSI {
			continue
		}
		if v.DeviceType != "" && Classify(rec) != v.DeviceType {
			continue
		}
		if v.RecentOnly && !r.RecentlyActive(rec, now) {
			continue
		}
		out = append(out, rec)
	}

	less := lessFunc(v.SortBy)
	sort.SliceStable(out, func(i, j int) bool {
		if v.Direction == Descending {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})

	return out
}

func lessFunc(key SortKey) func(a, b DeviceRecord) bool {
	switch key {
	case SortByName:
		return func(a, b DeviceRecord) bool {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	case SortByLastSeen:
		return func(a, b DeviceRecord) bool { return a.LastSeen.Before(b.LastSeen) }
	case SortByDetections:
		return func(a, b DeviceRecord) bool { return a.DetectionCount < b.DetectionCount }
	default:
		return func(a, b DeviceRecord) bool { return a.RSSI < b.RSSI }
	}
}
