package store

import (
	"strings"
	"time"

	"github.com/srg/blewatch/internal/aggregate"
	"github.com/srg/blewatch/internal/registry"
	"github.com/srg/blewatch/internal/session"
)

// deviceModel mirrors registry.DeviceRecord in the devices table, keyed by
// the platform device identifier.
type deviceModel struct {
	ID               string `gorm:"primaryKey"`
	Name             string
	RSSI             int
	MinRSSI          int
	MaxRSSI          int
	ServiceUUIDs     string // comma-joined, normalized lowercase
	ManufacturerData []byte
	FirstSeen        time.Time
	LastSeen         time.Time `gorm:"index"`
	DetectionCount   int
	Connectable      bool
	TxPower          *int
	UpdatedAt        time.Time
}

func (deviceModel) TableName() string { return "devices" }

// detectionModel is one append-only raw sighting row.
type detectionModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"index"`
	DeviceID  string `gorm:"index"`
	Name      string
	RSSI      int
	Timestamp time.Time `gorm:"index"`
}

func (detectionModel) TableName() string { return "detections" }

// sessionModel mirrors session.Session, keyed by the time-derived session id.
type sessionModel struct {
	ID                string `gorm:"primaryKey"`
	StartTime         time.Time `gorm:"index"`
	EndTime           *time.Time
	DurationMS        int64
	DevicesDiscovered int
	DeviceIDs         string // comma-joined
	ScanDurationMS    int64
	ScanTimeoutMS     int64
	ServiceUUIDs      string
	AllowDuplicates   bool
	ScanMode          string
	UpdatedAt         time.Time
}

func (sessionModel) TableName() string { return "sessions" }

// dataPointModel is one append-only aggregate sample row. Nullable RSSI
// columns stay NULL for empty-registry captures.
type dataPointModel struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp      time.Time `gorm:"index"`
	DeviceCount    int
	AvgRSSI        *float64
	MinRSSI        *int
	MaxRSSI        *int
	DistinctTypes  int
	ScanDurationMS int64
}

func (dataPointModel) TableName() string { return "data_points" }

func toDeviceModel(rec registry.DeviceRecord) deviceModel {
	return deviceModel{
		ID:               rec.ID,
		Name:             rec.Name,
		RSSI:             rec.RSSI,
		MinRSSI:          rec.MinRSSI,
		MaxRSSI:          rec.MaxRSSI,
		ServiceUUIDs:     strings.Join(rec.ServiceUUIDs, ","),
		ManufacturerData: rec.ManufacturerData,
		FirstSeen:        rec.FirstSeen,
		LastSeen:         rec.LastSeen,
		DetectionCount:   rec.DetectionCount,
		Connectable:      rec.Connectable,
		TxPower:          rec.TxPower,
	}
}

func toSessionModel(s session.Session) sessionModel {
	m := sessionModel{
		ID:                s.ID,
		StartTime:         s.StartTime,
		DurationMS:        s.Duration.Milliseconds(),
		DevicesDiscovered: s.DevicesDiscovered,
		DeviceIDs:         strings.Join(s.DeviceIDs, ","),
		ScanDurationMS:    s.Config.ScanDuration.Milliseconds(),
		ScanTimeoutMS:     s.Config.ScanTimeout.Milliseconds(),
		ServiceUUIDs:      strings.Join(s.Config.ServiceUUIDs, ","),
		AllowDuplicates:   s.Config.AllowDuplicates,
		ScanMode:          s.Config.ScanMode,
	}
	if !s.EndTime.IsZero() {
		end := s.EndTime
		m.EndTime = &end
	}
	return m
}

func fromSessionModel(m sessionModel) session.Session {
	s := session.Session{
		ID:                m.ID,
		StartTime:         m.StartTime,
		Duration:          time.Duration(m.DurationMS) * time.Millisecond,
		DevicesDiscovered: m.DevicesDiscovered,
		DeviceIDs:         splitList(m.DeviceIDs),
		Config: session.Config{
			ScanDuration:    time.Duration(m.ScanDurationMS) * time.Millisecond,
			ScanTimeout:     time.Duration(m.ScanTimeoutMS) * time.Millisecond,
			ServiceUUIDs:    splitList(m.ServiceUUIDs),
			AllowDuplicates: m.AllowDuplicates,
			ScanMode:        m.ScanMode,
		},
	}
	if m.EndTime != nil {
		s.EndTime = *m.EndTime
	}
	return s
}

func toDataPointModel(p aggregate.DataPoint) dataPointModel {
	return dataPointModel{
		Timestamp:      p.Timestamp,
		DeviceCount:    p.DeviceCount,
		AvgRSSI:        p.AvgRSSI,
		MinRSSI:        p.MinRSSI,
		MaxRSSI:        p.MaxRSSI,
		DistinctTypes:  p.DistinctTypes,
		ScanDurationMS: p.ScanDuration.Milliseconds(),
	}
}

func fromDataPointModel(m dataPointModel) aggregate.DataPoint {
	return aggregate.DataPoint{
		Timestamp:     m.Timestamp,
		DeviceCount:   m.DeviceCount,
		AvgRSSI:       m.AvgRSSI,
		MinRSSI:       m.MinRSSI,
		MaxRSSI:       m.MaxRSSI,
		DistinctTypes: m.DistinctTypes,
		ScanDuration:  time.Duration(m.ScanDurationMS) * time.Millisecond,
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
