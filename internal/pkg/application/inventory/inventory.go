package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/esDesler/smart-home-inventory-system/internal/pkg/infrastructure/storage"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
	"github.com/google/uuid"
)

var ErrInvalidRange = errors.New("invalid history range")

const defaultHistoryRange = 7 * 24 * time.Hour
const defaultHistoryPageSize = 500

//go:generate moq -rm -out inventory_mock.go . InventoryService

type InventoryService interface {
	ListItems(ctx context.Context) ([]storage.ItemStatus, error)
	CreateItem(ctx context.Context, input ItemInput) (storage.Item, error)
	GetItem(ctx context.Context, itemID string) (ItemDetails, error)
	UpdateItem(ctx context.Context, itemID string, input ItemInput) (storage.Item, error)
	SetThresholds(ctx context.Context, itemID string, thresholds types.Thresholds) (storage.Item, error)
	History(ctx context.Context, itemID, rangeSpec string, limit int) ([]storage.Reading, error)
	ListDevices(ctx context.Context) ([]storage.Device, error)
	ListSensors(ctx context.Context) ([]storage.Sensor, error)
}

// ItemInput carries the mutable item fields. Nil pointers leave the current
// value untouched on update.
type ItemInput struct {
	Name       *string           `json:"name"`
	SensorID   *string           `json:"sensor_id"`
	Thresholds *types.Thresholds `json:"thresholds"`
	Unit       *string           `json:"unit"`
	ImageURL   *string           `json:"image_url"`
}

// ItemDetails is an item together with its sensor's most recent reading.
type ItemDetails struct {
	storage.Item
	LatestReading *storage.Reading `json:"latest_reading"`
}

type service struct {
	store        *storage.Store
	historyLimit int
}

func New(store *storage.Store, historyLimit int) InventoryService {
	return &service{
		store:        store,
		historyLimit: historyLimit,
	}
}

func (s *service) ListItems(ctx context.Context) ([]storage.ItemStatus, error) {
	return s.store.ListItems(ctx)
}

func (s *service) CreateItem(ctx context.Context, input ItemInput) (storage.Item, error) {
	if input.Name == nil || *input.Name == "" {
		return storage.Item{}, errors.New("item name is required")
	}

	now := time.Now().UTC()

	item := storage.Item{
		ID:         uuid.NewString(),
		SensorID:   input.SensorID,
		Name:       *input.Name,
		Thresholds: input.Thresholds,
		Unit:       input.Unit,
		ImageURL:   input.ImageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.store.CreateItem(ctx, &item)
	if err != nil {
		return storage.Item{}, fmt.Errorf("could not create item: %w", err)
	}

	return item, nil
}

func (s *service) GetItem(ctx context.Context, itemID string) (ItemDetails, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return ItemDetails{}, err
	}

	details := ItemDetails{Item: item}

	if item.SensorID != nil {
		details.LatestReading, err = s.store.LatestReading(ctx, *item.SensorID)
		if err != nil {
			return ItemDetails{}, fmt.Errorf("could not load latest reading: %w", err)
		}
	}

	return details, nil
}

func (s *service) UpdateItem(ctx context.Context, itemID string, input ItemInput) (storage.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return storage.Item{}, err
	}

	if input.Name != nil {
		item.Name = *input.Name
	}
	if input.SensorID != nil {
		if *input.SensorID == "" {
			item.SensorID = nil
		} else {
			item.SensorID = input.SensorID
		}
	}
	if input.Thresholds != nil {
		item.Thresholds = input.Thresholds
	}
	if input.Unit != nil {
		item.Unit = input.Unit
	}
	if input.ImageURL != nil {
		item.ImageURL = input.ImageURL
	}

	item.UpdatedAt = time.Now().UTC()

	err = s.store.SaveItem(ctx, &item)
	if err != nil {
		return storage.Item{}, fmt.Errorf("could not update item: %w", err)
	}

	return item, nil
}

func (s *service) SetThresholds(ctx context.Context, itemID string, thresholds types.Thresholds) (storage.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return storage.Item{}, err
	}

	item.Thresholds = &thresholds
	item.UpdatedAt = time.Now().UTC()

	err = s.store.SaveItem(ctx, &item)
	if err != nil {
		return storage.Item{}, fmt.Errorf("could not update thresholds: %w", err)
	}

	return item, nil
}

// History returns the item's readings inside the requested range, oldest
// first. A non-positive limit falls back to the default page size; requested
// limits are capped by the configured maximum.
func (s *service) History(ctx context.Context, itemID, rangeSpec string, limit int) ([]storage.Reading, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if item.SensorID == nil {
		return []storage.Reading{}, nil
	}

	window, err := parseRange(rangeSpec)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultHistoryPageSize
	}
	if limit > s.historyLimit {
		limit = s.historyLimit
	}

	since := time.Now().UTC().Add(-window)

	return s.store.ReadingsSince(ctx, *item.SensorID, since, limit)
}

func (s *service) ListDevices(ctx context.Context) ([]storage.Device, error) {
	return s.store.ListDevices(ctx)
}

func (s *service) ListSensors(ctx context.Context) ([]storage.Sensor, error) {
	return s.store.ListSensors(ctx)
}

// parseRange understands "<n>d" and "<n>h" specs such as "7d" or "48h".
func parseRange(spec string) (time.Duration, error) {
	if spec == "" {
		return defaultHistoryRange, nil
	}

	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(spec, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(spec, "h"):
		unit = time.Hour
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidRange, spec)
	}

	n, err := strconv.Atoi(spec[:len(spec)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRange, spec)
	}

	return time.Duration(n) * unit, nil
}
