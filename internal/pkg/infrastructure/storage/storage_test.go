package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"
)

func testSetup(t *testing.T) (*is.I, context.Context, *Store) {
	is := is.New(t)
	ctx := context.Background()

	store, err := New(filepath.Join(t.TempDir(), "inventory.db"))
	is.NoErr(err)
	t.Cleanup(func() { store.Close() })

	return is, ctx, store
}

func f(v float64) *float64 {
	return &v
}

func TestUpsertDeviceUpdatesFirmwareAndLastSeen(t *testing.T) {
	is, ctx, store := testSetup(t)

	firstSeen := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	firmware := "0.1.0"
	is.NoErr(store.UpsertDevice(ctx, "pi-kitchen", &firmware, firstSeen))

	laterSeen := firstSeen.Add(time.Hour)
	firmware = "0.2.0"
	is.NoErr(store.UpsertDevice(ctx, "pi-kitchen", &firmware, laterSeen))

	devices, err := store.ListDevices(ctx)
	is.NoErr(err)
	is.Equal(1, len(devices))
	is.Equal("0.2.0", *devices[0].Firmware)
	is.Equal(laterSeen, devices[0].LastSeen.UTC())
}

func TestEnsureSensorIsIdempotent(t *testing.T) {
	is, ctx, store := testSetup(t)

	is.NoErr(store.EnsureSensor(ctx, "bin-01", "pi-kitchen"))
	is.NoErr(store.UpdateSensorState(ctx, "bin-01", "low", f(7), time.Now().UTC()))

	// a second ensure must not reset the tracked state
	is.NoErr(store.EnsureSensor(ctx, "bin-01", "pi-kitchen"))

	sensor, err := store.GetSensor(ctx, "bin-01")
	is.NoErr(err)
	is.Equal("low", *sensor.LastState)
}

func TestInsertReadingDeduplicatesOnIdentity(t *testing.T) {
	is, ctx, store := testSetup(t)

	reading := Reading{
		DeviceID:  "pi-kitchen",
		SensorID:  "bin-01",
		LocalSeq:  1,
		Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		State:     "ok",
	}

	inserted, err := store.InsertReading(ctx, reading)
	is.NoErr(err)
	is.True(inserted)

	inserted, err = store.InsertReading(ctx, reading)
	is.NoErr(err)
	is.True(!inserted)

	// same sequence number with a different timestamp is a distinct reading
	reading.Timestamp = reading.Timestamp.Add(time.Minute)
	inserted, err = store.InsertReading(ctx, reading)
	is.NoErr(err)
	is.True(inserted)
}

func TestAcknowledgeAlertRequiresActiveStatus(t *testing.T) {
	is, ctx, store := testSetup(t)

	alert := Alert{
		SensorID:  "bin-01",
		Type:      "low",
		Status:    AlertStatusActive,
		Message:   "Sensor bin-01 is low",
		CreatedAt: time.Now().UTC(),
	}
	is.NoErr(store.CreateAlert(ctx, &alert))
	is.True(alert.ID > 0)

	is.NoErr(store.AcknowledgeAlert(ctx, alert.ID, time.Now().UTC()))

	err := store.AcknowledgeAlert(ctx, alert.ID, time.Now().UTC())
	is.True(errors.Is(err, ErrAlertNotFound))

	err = store.AcknowledgeAlert(ctx, 9999, time.Now().UTC())
	is.True(errors.Is(err, ErrAlertNotFound))
}

func TestResolveActiveAlertsLeavesAcknowledgedAlone(t *testing.T) {
	is, ctx, store := testSetup(t)

	now := time.Now().UTC()

	acked := Alert{SensorID: "bin-01", Type: "low", Status: AlertStatusActive, CreatedAt: now}
	is.NoErr(store.CreateAlert(ctx, &acked))
	is.NoErr(store.AcknowledgeAlert(ctx, acked.ID, now))

	active := Alert{SensorID: "bin-01", Type: "out", Status: AlertStatusActive, CreatedAt: now}
	is.NoErr(store.CreateAlert(ctx, &active))

	is.NoErr(store.ResolveActiveAlerts(ctx, "bin-01", now))

	resolved, err := store.ListAlerts(ctx, AlertStatusResolved)
	is.NoErr(err)
	is.Equal(1, len(resolved))
	is.Equal(active.ID, resolved[0].ID)

	acknowledged, err := store.ListAlerts(ctx, AlertStatusAcknowledged)
	is.NoErr(err)
	is.Equal(1, len(acknowledged))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	is, ctx, store := testSetup(t)

	err := store.Transaction(ctx, func(tx *Store) error {
		is.NoErr(tx.EnsureSensor(ctx, "bin-01", "pi-kitchen"))
		return errors.New("boom")
	})
	is.True(err != nil)

	_, err = store.GetSensor(ctx, "bin-01")
	is.True(err != nil)
}

func TestEventJournalReplayAndPrune(t *testing.T) {
	is, ctx, store := testSetup(t)

	now := time.Now().UTC()

	var lastID uint
	for i := 0; i < 5; i++ {
		id, err := store.RecordEvent(ctx, "item_status_update", `{}`, now.Add(time.Duration(i)*time.Second))
		is.NoErr(err)
		is.True(id > lastID)
		lastID = id
	}

	missed, err := store.EventsSince(ctx, lastID-2, 100)
	is.NoErr(err)
	is.Equal(2, len(missed))
	is.Equal(lastID-1, missed[0].ID)
	is.Equal(lastID, missed[1].ID)

	// replay is bounded
	missed, err = store.EventsSince(ctx, 0, 3)
	is.NoErr(err)
	is.Equal(3, len(missed))

	// prune down to the newest two rows
	is.NoErr(store.PruneEvents(ctx, 0, 2))

	remaining, err := store.EventsSince(ctx, 0, 100)
	is.NoErr(err)
	is.Equal(2, len(remaining))
	is.Equal(lastID, remaining[1].ID)

	// prune everything older than the retention window
	is.NoErr(store.PruneEvents(ctx, time.Nanosecond, 0))

	remaining, err = store.EventsSince(ctx, 0, 100)
	is.NoErr(err)
	is.Equal(0, len(remaining))
}

func TestLatestReadingReturnsNilForUnknownSensor(t *testing.T) {
	is, ctx, store := testSetup(t)

	reading, err := store.LatestReading(ctx, "nosuchsensor")
	is.NoErr(err)
	is.True(reading == nil)
}
