package inventory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/esDesler/smart-home-inventory-system/internal/pkg/infrastructure/storage"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
	"github.com/matryer/is"
)

func testSetup(t *testing.T) (*is.I, context.Context, *storage.Store, InventoryService) {
	is := is.New(t)
	ctx := context.Background()

	store, err := storage.New(filepath.Join(t.TempDir(), "inventory.db"))
	is.NoErr(err)
	t.Cleanup(func() { store.Close() })

	return is, ctx, store, New(store, 2000)
}

func str(s string) *string {
	return &s
}

func f(v float64) *float64 {
	return &v
}

func TestCreateAndGetItem(t *testing.T) {
	is, ctx, _, svc := testSetup(t)

	created, err := svc.CreateItem(ctx, ItemInput{
		Name:     str("Basmati Rice"),
		SensorID: str("bin-01"),
		Unit:     str("g"),
	})
	is.NoErr(err)
	is.True(created.ID != "")

	details, err := svc.GetItem(ctx, created.ID)
	is.NoErr(err)
	is.Equal("Basmati Rice", details.Name)
	is.True(details.LatestReading == nil)
}

func TestCreateItemRequiresName(t *testing.T) {
	is, ctx, _, svc := testSetup(t)

	_, err := svc.CreateItem(ctx, ItemInput{})
	is.True(err != nil)
}

func TestGetUnknownItem(t *testing.T) {
	is, ctx, _, svc := testSetup(t)

	_, err := svc.GetItem(ctx, "nosuchitem")
	is.True(errors.Is(err, storage.ErrItemNotFound))
}

func TestUpdateItemLeavesUnsetFieldsAlone(t *testing.T) {
	is, ctx, _, svc := testSetup(t)

	created, err := svc.CreateItem(ctx, ItemInput{
		Name: str("Basmati Rice"),
		Unit: str("g"),
	})
	is.NoErr(err)

	updated, err := svc.UpdateItem(ctx, created.ID, ItemInput{Name: str("Jasmine Rice")})
	is.NoErr(err)
	is.Equal("Jasmine Rice", updated.Name)
	is.Equal("g", *updated.Unit)
}

func TestUpdateItemCanUnbindSensor(t *testing.T) {
	is, ctx, _, svc := testSetup(t)

	created, err := svc.CreateItem(ctx, ItemInput{
		Name:     str("Basmati Rice"),
		SensorID: str("bin-01"),
	})
	is.NoErr(err)

	updated, err := svc.UpdateItem(ctx, created.ID, ItemInput{SensorID: str("")})
	is.NoErr(err)
	is.True(updated.SensorID == nil)
}

func TestSetThresholds(t *testing.T) {
	is, ctx, _, svc := testSetup(t)

	created, err := svc.CreateItem(ctx, ItemInput{Name: str("Basmati Rice")})
	is.NoErr(err)

	updated, err := svc.SetThresholds(ctx, created.ID, types.Thresholds{Low: f(100), OK: f(400)})
	is.NoErr(err)
	is.Equal(100.0, *updated.Thresholds.Low)
	is.Equal(400.0, *updated.Thresholds.OK)
}

func TestHistoryReturnsReadingsInRange(t *testing.T) {
	is, ctx, store, svc := testSetup(t)

	created, err := svc.CreateItem(ctx, ItemInput{
		Name:     str("Basmati Rice"),
		SensorID: str("bin-01"),
	})
	is.NoErr(err)

	now := time.Now().UTC()
	for i, age := range []time.Duration{30 * 24 * time.Hour, 3 * 24 * time.Hour, time.Hour} {
		_, err = store.InsertReading(ctx, storage.Reading{
			DeviceID:  "pi-kitchen",
			SensorID:  "bin-01",
			LocalSeq:  uint64(i + 1),
			Timestamp: now.Add(-age),
			State:     "ok",
		})
		is.NoErr(err)
	}

	readings, err := svc.History(ctx, created.ID, "7d", 0)
	is.NoErr(err)
	is.Equal(2, len(readings))
	is.True(readings[0].Timestamp.Before(readings[1].Timestamp))

	readings, err = svc.History(ctx, created.ID, "2h", 0)
	is.NoErr(err)
	is.Equal(1, len(readings))
}

func TestHistoryHonorsRequestedLimit(t *testing.T) {
	is, ctx, store, svc := testSetup(t)

	created, err := svc.CreateItem(ctx, ItemInput{
		Name:     str("Basmati Rice"),
		SensorID: str("bin-01"),
	})
	is.NoErr(err)

	now := time.Now().UTC()
	for i := 1; i <= 4; i++ {
		_, err = store.InsertReading(ctx, storage.Reading{
			DeviceID:  "pi-kitchen",
			SensorID:  "bin-01",
			LocalSeq:  uint64(i),
			Timestamp: now.Add(time.Duration(i) * time.Minute),
			State:     "ok",
		})
		is.NoErr(err)
	}

	readings, err := svc.History(ctx, created.ID, "7d", 2)
	is.NoErr(err)
	is.Equal(2, len(readings))
}

func TestHistoryCapsLimitAtConfiguredMaximum(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	store, err := storage.New(filepath.Join(t.TempDir(), "inventory.db"))
	is.NoErr(err)
	t.Cleanup(func() { store.Close() })

	svc := New(store, 3)

	created, err := svc.CreateItem(ctx, ItemInput{
		Name:     str("Basmati Rice"),
		SensorID: str("bin-01"),
	})
	is.NoErr(err)

	now := time.Now().UTC()
	for i := 1; i <= 5; i++ {
		_, err = store.InsertReading(ctx, storage.Reading{
			DeviceID:  "pi-kitchen",
			SensorID:  "bin-01",
			LocalSeq:  uint64(i),
			Timestamp: now.Add(time.Duration(i) * time.Minute),
			State:     "ok",
		})
		is.NoErr(err)
	}

	readings, err := svc.History(ctx, created.ID, "7d", 100)
	is.NoErr(err)
	is.Equal(3, len(readings))
}

func TestHistoryRejectsMalformedRange(t *testing.T) {
	is, ctx, _, svc := testSetup(t)

	created, err := svc.CreateItem(ctx, ItemInput{
		Name:     str("Basmati Rice"),
		SensorID: str("bin-01"),
	})
	is.NoErr(err)

	for _, spec := range []string{"7", "d", "-3d", "7w"} {
		_, err = svc.History(ctx, created.ID, spec, 0)
		is.True(errors.Is(err, ErrInvalidRange))
	}
}

func TestListItemsJoinsSensorState(t *testing.T) {
	is, ctx, store, svc := testSetup(t)

	_, err := svc.CreateItem(ctx, ItemInput{
		Name:     str("Basmati Rice"),
		SensorID: str("bin-01"),
	})
	is.NoErr(err)

	err = store.EnsureSensor(ctx, "bin-01", "pi-kitchen")
	is.NoErr(err)
	err = store.UpdateSensorState(ctx, "bin-01", "low", f(7), time.Now().UTC())
	is.NoErr(err)

	items, err := svc.ListItems(ctx)
	is.NoErr(err)
	is.Equal(1, len(items))
	is.Equal("low", items[0].Status)
	is.Equal(7.0, *items[0].LastValue)
}
