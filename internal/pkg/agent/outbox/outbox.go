package outbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/esDesler/smart-home-inventory-system/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// queuedReading is the persisted form of a pending upload. The sqlite
// AUTOINCREMENT primary key doubles as the local sequence id, which keeps it
// strictly increasing across restarts and acks.
type queuedReading struct {
	SeqID           uint64 `gorm:"primaryKey;autoIncrement"`
	SensorID        string `gorm:"not null"`
	Timestamp       string `gorm:"column:ts;not null"`
	RawValue        *float64
	NormalizedValue *float64
	State           string `gorm:"not null"`
}

func (queuedReading) TableName() string {
	return "readings"
}

// Outbox is the device side durable queue of classified readings. It is
// written by the polling loop and read by the uploader; every operation
// serializes under one mutex.
type Outbox struct {
	mu sync.Mutex
	db *gorm.DB

	maxRows int
	maxAge  time.Duration
}

func New(dbPath string, maxRows, maxAgeSeconds int) (*Outbox, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		err := os.MkdirAll(dir, 0o755)
		if err != nil {
			return nil, fmt.Errorf("could not create queue directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_journal_mode=WAL"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open queue database: %w", err)
	}

	err = db.AutoMigrate(&queuedReading{})
	if err != nil {
		return nil, fmt.Errorf("could not migrate queue schema: %w", err)
	}

	return &Outbox{
		db:      db,
		maxRows: maxRows,
		maxAge:  time.Duration(maxAgeSeconds) * time.Second,
	}, nil
}

// Enqueue stores a reading durably and returns its assigned local sequence
// id. Retention trimming runs after every enqueue.
func (o *Outbox) Enqueue(r types.Reading) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	row := queuedReading{
		SensorID:        r.SensorID,
		Timestamp:       r.Timestamp,
		RawValue:        r.RawValue,
		NormalizedValue: r.NormalizedValue,
		State:           r.State,
	}

	result := o.db.Create(&row)
	if result.Error != nil {
		return 0, fmt.Errorf("could not enqueue reading: %w", result.Error)
	}

	err := o.trim()
	if err != nil {
		return 0, err
	}

	return row.SeqID, nil
}

// GetBatch returns the oldest pending readings in sequence order, up to
// limit. Rows are not removed; only AckUpTo removes.
func (o *Outbox) GetBatch(limit int) ([]types.Reading, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var rows []queuedReading
	result := o.db.Order("seq_id asc").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("could not read batch: %w", result.Error)
	}

	batch := make([]types.Reading, 0, len(rows))
	for _, row := range rows {
		batch = append(batch, types.Reading{
			LocalSeq:        row.SeqID,
			SensorID:        row.SensorID,
			Timestamp:       row.Timestamp,
			RawValue:        row.RawValue,
			NormalizedValue: row.NormalizedValue,
			State:           row.State,
		})
	}

	return batch, nil
}

// AckUpTo deletes every reading with a local sequence id at or below seq.
// Idempotent.
func (o *Outbox) AckUpTo(seq uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := o.db.Where("seq_id <= ?", seq).Delete(&queuedReading{})
	if result.Error != nil {
		return fmt.Errorf("could not ack readings: %w", result.Error)
	}

	return nil
}

func (o *Outbox) PendingCount() (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var count int64
	result := o.db.Model(&queuedReading{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("could not count pending readings: %w", result.Error)
	}

	return count, nil
}

func (o *Outbox) MaxLocalSeq() (*uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var row queuedReading
	result := o.db.Order("seq_id desc").Limit(1).Find(&row)
	if result.Error != nil {
		return nil, fmt.Errorf("could not read max sequence id: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return &row.SeqID, nil
}

// trim enforces the retention policy. It may drop rows that were never
// acked: under a catastrophic backlog fresh data is preferred over old.
// Caller holds the mutex.
func (o *Outbox) trim() error {
	if o.maxAge > 0 {
		cutoff := time.Now().UTC().Add(-o.maxAge).Format(time.RFC3339Nano)
		result := o.db.Where("ts < ?", cutoff).Delete(&queuedReading{})
		if result.Error != nil {
			return fmt.Errorf("could not trim by age: %w", result.Error)
		}
	}

	if o.maxRows > 0 {
		var count int64
		result := o.db.Model(&queuedReading{}).Count(&count)
		if result.Error != nil {
			return fmt.Errorf("could not trim by row count: %w", result.Error)
		}

		if count > int64(o.maxRows) {
			excess := count - int64(o.maxRows)
			result = o.db.Exec(
				"DELETE FROM readings WHERE seq_id IN (SELECT seq_id FROM readings ORDER BY seq_id ASC LIMIT ?)",
				excess,
			)
			if result.Error != nil {
				return fmt.Errorf("could not trim by row count: %w", result.Error)
			}
		}
	}

	return nil
}

func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	db, err := o.db.DB()
	if err != nil {
		return err
	}

	return db.Close()
}
