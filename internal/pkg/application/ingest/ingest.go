package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/events"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/infrastructure/storage"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/metrics"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
)

var ErrInvalidTimestamp = errors.New("invalid reading timestamp")

//go:generate moq -rm -out ingest_mock.go . IngestService

type IngestService interface {
	IngestBatch(ctx context.Context, batch types.ReadingsBatch) (*types.BatchResponse, error)
}

type service struct {
	store     *storage.Store
	publisher events.Publisher
}

func New(store *storage.Store, publisher events.Publisher) IngestService {
	return &service{
		store:     store,
		publisher: publisher,
	}
}

// IngestBatch processes the readings of one batch in order, inside a single
// transaction. Replayed readings are detected on the stored reading's
// identity and contribute to the ack without emitting events, which makes
// the at-least-once upload effectively exactly-once. A malformed timestamp
// rejects the whole batch with nothing committed.
func (s *service) IngestBatch(ctx context.Context, batch types.ReadingsBatch) (*types.BatchResponse, error) {
	now := time.Now().UTC()

	var ackSeq *uint64
	var pending []types.Event

	err := s.store.Transaction(ctx, func(tx *storage.Store) error {
		var firmware *string
		if batch.Firmware != "" {
			firmware = &batch.Firmware
		}

		err := tx.UpsertDevice(ctx, batch.DeviceID, firmware, now)
		if err != nil {
			return fmt.Errorf("could not upsert device: %w", err)
		}

		for _, reading := range batch.Readings {
			ts, err := parseTimestamp(reading.Timestamp)
			if err != nil {
				return err
			}

			err = tx.EnsureSensor(ctx, reading.SensorID, batch.DeviceID)
			if err != nil {
				return fmt.Errorf("could not ensure sensor: %w", err)
			}

			sensor, err := tx.GetSensor(ctx, reading.SensorID)
			if err != nil {
				return fmt.Errorf("could not read sensor state: %w", err)
			}

			inserted, err := tx.InsertReading(ctx, storage.Reading{
				DeviceID:        batch.DeviceID,
				SensorID:        reading.SensorID,
				LocalSeq:        reading.LocalSeq,
				Timestamp:       ts,
				RawValue:        reading.RawValue,
				NormalizedValue: reading.NormalizedValue,
				State:           reading.State,
				CreatedAt:       now,
			})
			if err != nil {
				return fmt.Errorf("could not store reading: %w", err)
			}

			// the row exists either way, so acking it is safe
			seq := reading.LocalSeq
			ackSeq = &seq

			if !inserted {
				metrics.ReadingsDuplicate.Inc()
				continue
			}
			metrics.ReadingsIngested.Inc()

			if sensor.LastUpdate == nil || !ts.Before(*sensor.LastUpdate) {
				err = tx.UpdateSensorState(ctx, reading.SensorID, reading.State, reading.NormalizedValue, ts)
				if err != nil {
					return fmt.Errorf("could not update sensor state: %w", err)
				}
			}

			item, err := tx.ItemForSensor(ctx, reading.SensorID)
			if err != nil {
				return fmt.Errorf("could not look up item: %w", err)
			}

			var itemID *string
			if item != nil {
				itemID = &item.ID
			}

			pending = append(pending, types.ItemStatusUpdate{
				SensorID:        reading.SensorID,
				ItemID:          itemID,
				State:           reading.State,
				NormalizedValue: reading.NormalizedValue,
				Timestamp:       ts.Format(time.RFC3339Nano),
			})

			prevState := ""
			if sensor.LastState != nil {
				prevState = *sensor.LastState
			}

			if prevState == reading.State {
				continue
			}

			if reading.State == types.StateLow || reading.State == types.StateOut {
				alert := storage.Alert{
					ItemID:    itemID,
					SensorID:  reading.SensorID,
					Type:      reading.State,
					Status:    storage.AlertStatusActive,
					Message:   alertMessage(item, reading.SensorID, reading.State),
					CreatedAt: now,
				}

				err = tx.CreateAlert(ctx, &alert)
				if err != nil {
					return fmt.Errorf("could not create alert: %w", err)
				}
				metrics.AlertsCreated.Inc()

				pending = append(pending, types.AlertCreated{
					AlertID:   alert.ID,
					SensorID:  reading.SensorID,
					ItemID:    itemID,
					State:     reading.State,
					Message:   alert.Message,
					CreatedAt: now.Format(time.RFC3339Nano),
				})
			}

			if reading.State == types.StateOK {
				err = tx.ResolveActiveAlerts(ctx, reading.SensorID, now)
				if err != nil {
					return fmt.Errorf("could not resolve alerts: %w", err)
				}
				metrics.AlertsResolved.Inc()

				pending = append(pending, types.AlertResolved{
					SensorID:   reading.SensorID,
					ItemID:     itemID,
					ResolvedAt: now.Format(time.RFC3339Nano),
				})
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTimestamp) {
			metrics.BatchesRejected.Inc()
		}
		return nil, err
	}

	for _, event := range pending {
		s.publisher.Publish(ctx, event)
	}

	return &types.BatchResponse{
		AckSeqID:   ackSeq,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}

func alertMessage(item *storage.Item, sensorID, state string) string {
	if item != nil {
		return fmt.Sprintf("%s is %s", item.Name, state)
	}
	return fmt.Sprintf("Sensor %s is %s", sensorID, state)
}

// parseTimestamp accepts ISO-8601, assumes UTC for naive timestamps and
// normalizes everything to UTC.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: missing", ErrInvalidTimestamp)
	}

	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	}

	for _, layout := range layouts {
		ts, err := time.Parse(layout, value)
		if err == nil {
			return ts.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTimestamp, value)
}
