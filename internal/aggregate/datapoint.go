package aggregate

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blewatch/internal/registry"
)

// DataPoint is one immutable time-series sample of registry state. Points
// are append-only and never deduplicated or updated after capture.
//
// RSSI aggregates are nil when the registry was empty at capture time; a
// zero there would be indistinguishable from a real 0 dBm reading.
type DataPoint struct {
	Timestamp   time.Time
	DeviceCount int

	AvgRSSI *float64
	MinRSSI *int
	MaxRSSI *int

	// DistinctTypes counts distinct device-type labels in the snapshot.
	DistinctTypes int

	// ScanDuration is the active-scan window in effect at capture time.
	ScanDuration time.Duration
}

// Stats is the richer UI-facing aggregate: a DataPoint plus the full type
// histogram, in stable first-seen order.
type Stats struct {
	DataPoint
	TypeHistogram *orderedmap.OrderedMap[string, int]
}

// Capture computes a sample over a registry snapshot. Pure; the snapshot is
// not modified.
func Capture(snapshot []registry.DeviceRecord, now time.Time, scanDuration time.Duration) Stats {
	histogram := orderedmap.New[string, int]()

	point := DataPoint{
		Timestamp:    now,
		DeviceCount:  len(snapshot),
		ScanDuration: scanDuration,
	}

	if len(snapshot) == 0 {
		return Stats{DataPoint: point, TypeHistogram: histogram}
	}

	sum := 0
	min := snapshot[0].RSSI
	max := snapshot[0].RSSI
	for _, rec := range snapshot {
		sum += rec.RSSI
		if rec.RSSI < min {
			min = rec.RSSI
		}
		if rec.RSSI > max {
			max = rec.RSSI
		}

		label := registry.Classify(rec)
		count, _ := histogram.Get(label)
		histogram.Set(label, count+1)
	}

	avg := float64(sum) / float64(len(snapshot))
	point.AvgRSSI = &avg
	point.MinRSSI = &min
	point.MaxRSSI = &max
	point.DistinctTypes = histogram.Len()

	return Stats{DataPoint: point, TypeHistogram: histogram}
}
