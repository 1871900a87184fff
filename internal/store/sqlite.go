package store

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/srg/blewatch/internal/aggregate"
	"github.com/srg/blewatch/internal/registry"
	"github.com/srg/blewatch/internal/session"
)

// SQLiteGateway persists the device history to a local SQLite file. Single
// writer, single node: this is one user's device history, not a shared
// database.
type SQLiteGateway struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// OpenSQLite opens (creating if needed) the database at path and migrates
// the schema. Use ":memory:" for an ephemeral store in tests.
func OpenSQLite(path string, logger *logrus.Logger) (*SQLiteGateway, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %q: %w", path, err)
	}

	if err := db.AutoMigrate(&deviceModel{}, &detectionModel{}, &sessionModel{}, &dataPointModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate store schema: %w", err)
	}

	return &SQLiteGateway{db: db, logger: logger}, nil
}

// UpsertDevice writes the merged record, replacing any previous row for the
// same device id.
func (g *SQLiteGateway) UpsertDevice(rec registry.DeviceRecord) error {
	m := toDeviceModel(rec)
	return g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

// InsertDetection appends one raw sighting row.
func (g *SQLiteGateway) InsertDetection(sessionID string, rec registry.DeviceRecord) error {
	m := detectionModel{
		SessionID: sessionID,
		DeviceID:  rec.ID,
		Name:      rec.Name,
		RSSI:      rec.RSSI,
		Timestamp: rec.LastSeen,
	}
	return g.db.Create(&m).Error
}

// UpsertSession writes the session at both its start and stop transitions.
func (g *SQLiteGateway) UpsertSession(s session.Session) error {
	m := toSessionModel(s)
	return g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

// InsertDataPoint appends one aggregate sample.
func (g *SQLiteGateway) InsertDataPoint(p aggregate.DataPoint) error {
	m := toDataPointModel(p)
	return g.db.Create(&m).Error
}

// DataPoints returns stored points in ascending timestamp order.
func (g *SQLiteGateway) DataPoints(q DataPointQuery) ([]aggregate.DataPoint, error) {
	tx := g.db.Model(&dataPointModel{}).Order("timestamp asc")
	if q.Start != nil {
		tx = tx.Where("timestamp >= ?", *q.Start)
	}
	if q.End != nil {
		tx = tx.Where("timestamp <= ?", *q.End)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []dataPointModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}

	points := make([]aggregate.DataPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, fromDataPointModel(row))
	}
	return points, nil
}

// RecentSessions returns stored sessions newest first.
func (g *SQLiteGateway) RecentSessions(limit int) ([]session.Session, error) {
	tx := g.db.Model(&sessionModel{}).Order("start_time desc")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var rows []sessionModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}

	sessions := make([]session.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, fromSessionModel(row))
	}
	return sessions, nil
}

// Close releases the underlying database handle.
func (g *SQLiteGateway) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
