package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/events"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/infrastructure/storage"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
)

//go:generate moq -rm -out alerts_mock.go . AlertService

type AlertService interface {
	List(ctx context.Context, status string) ([]storage.Alert, error)
	Acknowledge(ctx context.Context, alertID uint) error
}

type service struct {
	store     *storage.Store
	publisher events.Publisher
}

func New(store *storage.Store, publisher events.Publisher) AlertService {
	return &service{
		store:     store,
		publisher: publisher,
	}
}

func (s *service) List(ctx context.Context, status string) ([]storage.Alert, error) {
	if status == "" {
		status = storage.AlertStatusActive
	}

	return s.store.ListAlerts(ctx, status)
}

// Acknowledge silences an active alert. Alerts that already left the active
// state report storage.ErrAlertNotFound.
func (s *service) Acknowledge(ctx context.Context, alertID uint) error {
	now := time.Now().UTC()

	err := s.store.AcknowledgeAlert(ctx, alertID, now)
	if err != nil {
		return fmt.Errorf("could not acknowledge alert %d: %w", alertID, err)
	}

	s.publisher.Publish(ctx, types.AlertAcknowledged{
		AlertID:        alertID,
		AcknowledgedAt: now.Format(time.RFC3339Nano),
	})

	return nil
}
