package registry

import (
	"sort"
	"strings"
	"time"

	"github.com/srg/blewatch/internal/observation"
)

// rssiHistoryLen bounds the per-record signal history window.
const rssiHistoryLen = 10

// DeviceRecord is the merged state of one device. Records are value types:
// every merge produces a new copy, existing copies are never mutated, so a
// snapshot handed to a consumer stays stable.
type DeviceRecord struct {
	// ID is the platform-assigned identifier, unique within the registry.
	ID string

	// Name prefers the advertised local name over the generic platform name.
	Name string

	// RSSI is the most recent signal strength in dBm.
	RSSI int

	// MinRSSI and MaxRSSI track the weakest and strongest signal observed.
	MinRSSI int
	MaxRSSI int

	// RSSIHistory holds the most recent readings, oldest first, capped at
	// rssiHistoryLen entries.
	RSSIHistory []int

	ServiceUUIDs     []string
	ManufacturerData []byte
	ServiceData      map[string][]byte

	FirstSeen      time.Time
	LastSeen       time.Time
	DetectionCount int

	Connectable bool
	TxPower     *int
}

// newRecord builds the initial record for a first-sight observation.
func newRecord(obs observation.Observation, now time.Time) DeviceRecord {
	rec := DeviceRecord{
		ID:               obs.ID,
		Name:             displayName(obs),
		RSSI:             obs.RSSI,
		MinRSSI:          obs.RSSI,
		MaxRSSI:          obs.RSSI,
		RSSIHistory:      []int{obs.RSSI},
		ManufacturerData: obs.ManufacturerData,
		ServiceData:      copyServiceData(obs.ServiceData),
		FirstSeen:        now,
		LastSeen:         now,
		DetectionCount:   1,
		Connectable:      obs.Connectable,
		TxPower:          obs.TxPower,
	}

	rec.ServiceUUIDs = normalizeUUIDs(obs.ServiceUUIDs)
	return rec
}

// merged returns a new record combining the previous state with a fresh
// observation: the detection count increments, current fields are replaced,
// and static fields are kept unless the observation supplies a non-empty
// replacement. The stream is unordered, so the seen bounds clamp rather than
// assign: FirstSeen stays the earliest timestamp observed and LastSeen the
// latest, keeping FirstSeen <= LastSeen for late deliveries.
func (r DeviceRecord) merged(obs observation.Observation, now time.Time) DeviceRecord {
	next := r

	next.RSSI = obs.RSSI
	if now.After(r.LastSeen) {
		next.LastSeen = now
	}
	if now.Before(r.FirstSeen) {
		next.FirstSeen = now
	}
	next.DetectionCount = r.DetectionCount + 1
	next.Connectable = obs.Connectable

	if obs.RSSI < next.MinRSSI {
		next.MinRSSI = obs.RSSI
	}
	if obs.RSSI > next.MaxRSSI {
		next.MaxRSSI = obs.RSSI
	}
	next.RSSIHistory = appendBounded(r.RSSIHistory, obs.RSSI, rssiHistoryLen)

	if name := obs.LocalName; name != "" {
		next.Name = name
	} else if next.Name == "" {
		next.Name = displayName(obs)
	}

	if len(obs.ManufacturerData) > 0 {
		next.ManufacturerData = obs.ManufacturerData
	}

	next.ServiceUUIDs = unionUUIDs(r.ServiceUUIDs, obs.ServiceUUIDs)

	if len(obs.ServiceData) > 0 {
		sd := copyServiceData(r.ServiceData)
		for uuid, data := range obs.ServiceData {
			sd[normalizeUUID(uuid)] = data
		}
		next.ServiceData = sd
	}

	if obs.TxPower != nil {
		next.TxPower = obs.TxPower
	}

	return next
}

// displayName prefers the advertised local name, then the platform name,
// then the bare identifier.
func displayName(obs observation.Observation) string {
	if obs.LocalName != "" {
		return obs.LocalName
	}
	if obs.PlatformName != "" {
		return obs.PlatformName
	}
	return obs.ID
}

// normalizeUUID lower-cases a service UUID so lookups are case-insensitive.
func normalizeUUID(uuid string) string {
	return strings.ToLower(strings.TrimSpace(uuid))
}

func normalizeUUIDs(uuids []string) []string {
	if len(uuids) == 0 {
		return nil
	}
	out := make([]string, 0, len(uuids))
	seen := make(map[string]struct{}, len(uuids))
	for _, u := range uuids {
		n := normalizeUUID(u)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// unionUUIDs merges newly advertised services into the known set, keeping the
// result sorted. The existing slice is never modified.
func unionUUIDs(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}

	merged := make([]string, len(existing))
	copy(merged, existing)

	changed := false
	for _, u := range incoming {
		n := normalizeUUID(u)
		if n == "" || containsUUID(merged, n) {
			continue
		}
		merged = append(merged, n)
		changed = true
	}
	if !changed {
		return existing
	}
	sort.Strings(merged)
	return merged
}

func containsUUID(uuids []string, uuid string) bool {
	for _, u := range uuids {
		if u == uuid {
			return true
		}
	}
	return false
}

func copyServiceData(in map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for uuid, data := range in {
		out[normalizeUUID(uuid)] = data
	}
	return out
}

// appendBounded appends v and keeps only the trailing max entries, always
// returning fresh backing storage so record copies do not share slices.
func appendBounded(history []int, v int, max int) []int {
	out := make([]int, 0, max)
	if len(history) >= max {
		out = append(out, history[len(history)-max+1:]...)
	} else {
		out = append(out, history...)
	}
	return append(out, v)
}
