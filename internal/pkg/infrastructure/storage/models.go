package storage

import (
	"time"

	"github.com/esDesler/smart-home-inventory-system/pkg/types"
)

// Device is upserted on every successful batch ingest.
type Device struct {
	ID       string     `gorm:"primaryKey" json:"id"`
	Name     *string    `json:"name"`
	Location *string    `json:"location"`
	Firmware *string    `json:"firmware"`
	LastSeen *time.Time `json:"last_seen"`
}

// Sensor rows are created automatically the first time a device reports a
// reading for them. last_state/last_value/last_update track the newest
// reading by sensor timestamp; out of order readings do not regress them.
type Sensor struct {
	ID         string            `gorm:"primaryKey" json:"id"`
	DeviceID   string            `gorm:"index" json:"device_id"`
	Type       *string           `json:"type"`
	Thresholds *types.Thresholds `gorm:"serializer:json" json:"thresholds"`
	StateMap   map[string]string `gorm:"serializer:json" json:"state_map"`
	LastState  *string           `json:"last_state"`
	LastValue  *float64          `json:"last_value"`
	LastUpdate *time.Time        `json:"last_update"`
}

// Item is the UI facing name for at most one sensor. The sensor reference is
// weak: sensors exist without items and items without sensors.
type Item struct {
	ID         string            `gorm:"primaryKey" json:"id"`
	SensorID   *string           `gorm:"index" json:"sensor_id"`
	Name       string            `gorm:"not null" json:"name"`
	Thresholds *types.Thresholds `gorm:"serializer:json" json:"thresholds"`
	Unit       *string           `json:"unit"`
	ImageURL   *string           `json:"image_url"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Reading is one stored observation. The composite unique index is the
// idempotency key that makes batch replays harmless.
type Reading struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	DeviceID        string    `gorm:"uniqueIndex:idx_reading_identity" json:"device_id"`
	SensorID        string    `gorm:"uniqueIndex:idx_reading_identity;index:idx_readings_sensor_ts,priority:1" json:"sensor_id"`
	LocalSeq        uint64    `gorm:"uniqueIndex:idx_reading_identity" json:"seq_id"`
	Timestamp       time.Time `gorm:"column:ts;uniqueIndex:idx_reading_identity;index:idx_readings_sensor_ts,priority:2" json:"ts"`
	RawValue        *float64  `json:"raw_value"`
	NormalizedValue *float64  `json:"normalized_value"`
	State           string    `gorm:"not null" json:"state"`
	CreatedAt       time.Time `json:"created_at"`
}

const (
	AlertStatusActive       string = "active"
	AlertStatusAcknowledged string = "acknowledged"
	AlertStatusResolved     string = "resolved"
)

// Alert lifecycle: active -> acknowledged (manual) or active -> resolved
// (automatic, on return to ok). At most one alert per sensor is active at
// any time.
type Alert struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ItemID     *string    `json:"item_id"`
	SensorID   string     `gorm:"index" json:"sensor_id"`
	Type       string     `gorm:"not null" json:"type"`
	Status     string     `gorm:"not null;index" json:"status"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// Event is the journaled copy of a broadcast event, kept so that stream
// subscribers can replay what they missed across a reconnect.
type Event struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Type      string    `gorm:"not null" json:"type"`
	Payload   string    `gorm:"not null" json:"payload"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
