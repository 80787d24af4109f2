package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	ErrItemNotFound  = errors.New("item not found")
	ErrAlertNotFound = errors.New("alert not found")
)

// Store wraps the shared sqlite file. Request handlers run their work inside
// Transaction, which commits on success and rolls back on any error.
type Store struct {
	db *gorm.DB
}

func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		err := os.MkdirAll(dir, 0o755)
		if err != nil {
			return nil, fmt.Errorf("could not create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_journal_mode=WAL&_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	err = db.AutoMigrate(&Device{}, &Sensor{}, &Item{}, &Reading{}, &Alert{}, &Event{})
	if err != nil {
		return nil, fmt.Errorf("could not migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Transaction runs fn against a store bound to one transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func (s *Store) UpsertDevice(ctx context.Context, deviceID string, firmware *string, lastSeen time.Time) error {
	device := Device{ID: deviceID, Firmware: firmware, LastSeen: &lastSeen}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"firmware", "last_seen"}),
	}).Create(&device)

	return result.Error
}

func (s *Store) EnsureSensor(ctx context.Context, sensorID, deviceID string) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoNothing: true,
	}).Create(&Sensor{ID: sensorID, DeviceID: deviceID})

	return result.Error
}

func (s *Store) GetSensor(ctx context.Context, sensorID string) (Sensor, error) {
	var sensor Sensor
	result := s.db.WithContext(ctx).First(&sensor, "id = ?", sensorID)
	return sensor, result.Error
}

// InsertReading stores a reading unless its identity already exists. The
// second return value reports whether a row was actually inserted.
func (s *Store) InsertReading(ctx context.Context, reading Reading) (bool, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&reading)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (s *Store) UpdateSensorState(ctx context.Context, sensorID, state string, value *float64, ts time.Time) error {
	result := s.db.WithContext(ctx).Model(&Sensor{}).Where("id = ?", sensorID).Updates(map[string]any{
		"last_state":  state,
		"last_value":  value,
		"last_update": ts,
	})

	return result.Error
}

// ItemForSensor returns nil when no item is bound to the sensor.
func (s *Store) ItemForSensor(ctx context.Context, sensorID string) (*Item, error) {
	var item Item
	result := s.db.WithContext(ctx).First(&item, "sensor_id = ?", sensorID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}

	return &item, nil
}

func (s *Store) CreateAlert(ctx context.Context, alert *Alert) error {
	return s.db.WithContext(ctx).Create(alert).Error
}

// ResolveActiveAlerts resolves every active alert for the sensor.
func (s *Store) ResolveActiveAlerts(ctx context.Context, sensorID string, resolvedAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&Alert{}).
		Where("sensor_id = ? AND status = ?", sensorID, AlertStatusActive).
		Updates(map[string]any{"status": AlertStatusResolved, "resolved_at": resolvedAt})

	return result.Error
}

// AcknowledgeAlert transitions an active alert to acknowledged. Alerts in
// any other status are reported as not found.
func (s *Store) AcknowledgeAlert(ctx context.Context, alertID uint, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&Alert{}).
		Where("id = ? AND status = ?", alertID, AlertStatusActive).
		Updates(map[string]any{"status": AlertStatusAcknowledged, "resolved_at": at})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlertNotFound
	}

	return nil
}

func (s *Store) ListAlerts(ctx context.Context, status string) ([]Alert, error) {
	var alerts []Alert
	result := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at desc").
		Find(&alerts)

	return alerts, result.Error
}

func (s *Store) CreateItem(ctx context.Context, item *Item) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetItem(ctx context.Context, itemID string) (Item, error) {
	var item Item
	result := s.db.WithContext(ctx).First(&item, "id = ?", itemID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return Item{}, ErrItemNotFound
	}

	return item, result.Error
}

func (s *Store) SaveItem(ctx context.Context, item *Item) error {
	return s.db.WithContext(ctx).Save(item).Error
}

// ItemStatus is an item joined with its sensor's derived state for listings.
type ItemStatus struct {
	Item
	Status     string     `json:"status"`
	LastValue  *float64   `json:"last_value"`
	LastUpdate *time.Time `json:"last_update"`
}

func (s *Store) ListItems(ctx context.Context) ([]ItemStatus, error) {
	var items []Item
	result := s.db.WithContext(ctx).Order("name asc").Find(&items)
	if result.Error != nil {
		return nil, result.Error
	}

	sensorIDs := lo.FilterMap(items, func(item Item, _ int) (string, bool) {
		if item.SensorID == nil {
			return "", false
		}
		return *item.SensorID, true
	})

	var sensors []Sensor
	if len(sensorIDs) > 0 {
		result = s.db.WithContext(ctx).Where("id IN ?", sensorIDs).Find(&sensors)
		if result.Error != nil {
			return nil, result.Error
		}
	}

	sensorsByID := lo.KeyBy(sensors, func(sensor Sensor) string { return sensor.ID })

	return lo.Map(items, func(item Item, _ int) ItemStatus {
		status := ItemStatus{Item: item, Status: "unknown"}

		if item.SensorID != nil {
			if sensor, found := sensorsByID[*item.SensorID]; found {
				if sensor.LastState != nil {
					status.Status = *sensor.LastState
				}
				status.LastValue = sensor.LastValue
				status.LastUpdate = sensor.LastUpdate
			}
		}

		return status
	}), nil
}

func (s *Store) LatestReading(ctx context.Context, sensorID string) (*Reading, error) {
	var reading Reading
	result := s.db.WithContext(ctx).
		Where("sensor_id = ?", sensorID).
		Order("ts desc").
		Limit(1).
		Find(&reading)

	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return &reading, nil
}

func (s *Store) ReadingsSince(ctx context.Context, sensorID string, since time.Time, limit int) ([]Reading, error) {
	var readings []Reading
	result := s.db.WithContext(ctx).
		Where("sensor_id = ? AND ts >= ?", sensorID, since).
		Order("ts asc").
		Limit(limit).
		Find(&readings)

	return readings, result.Error
}

func (s *Store) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	result := s.db.WithContext(ctx).Order("id asc").Find(&devices)
	return devices, result.Error
}

func (s *Store) ListSensors(ctx context.Context) ([]Sensor, error) {
	var sensors []Sensor
	result := s.db.WithContext(ctx).Order("id asc").Find(&sensors)
	return sensors, result.Error
}

func (s *Store) RecordEvent(ctx context.Context, eventType, payload string, createdAt time.Time) (uint, error) {
	event := Event{Type: eventType, Payload: payload, CreatedAt: createdAt}
	result := s.db.WithContext(ctx).Create(&event)
	return event.ID, result.Error
}

func (s *Store) EventsSince(ctx context.Context, lastEventID uint, limit int) ([]Event, error) {
	var events []Event
	result := s.db.WithContext(ctx).
		Where("id > ?", lastEventID).
		Order("id asc").
		Limit(limit).
		Find(&events)

	return events, result.Error
}

// PruneEvents enforces journal retention by age and row count.
func (s *Store) PruneEvents(ctx context.Context, retention time.Duration, maxRows int) error {
	db := s.db.WithContext(ctx)

	if retention > 0 {
		cutoff := time.Now().UTC().Add(-retention)
		result := db.Where("created_at < ?", cutoff).Delete(&Event{})
		if result.Error != nil {
			return result.Error
		}
	}

	if maxRows > 0 {
		var count int64
		result := db.Model(&Event{}).Count(&count)
		if result.Error != nil {
			return result.Error
		}

		if count > int64(maxRows) {
			excess := count - int64(maxRows)
			result = db.Exec(
				"DELETE FROM events WHERE id IN (SELECT id FROM events ORDER BY id ASC LIMIT ?)",
				excess,
			)
			if result.Error != nil {
				return result.Error
			}
		}
	}

	return nil
}
