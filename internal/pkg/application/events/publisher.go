package events

import (
	"context"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/infrastructure/storage"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
)

//go:generate moq -rm -out publisher_mock.go . Publisher

// Publisher is how the application services hand events to the outside
// world. Publishing never fails visibly; slow consumers lose events and
// undeliverable webhooks are only logged.
type Publisher interface {
	Publish(ctx context.Context, event types.Event)
}

type publisher struct {
	store       *storage.Store
	broadcaster *Broadcaster
	notifier    *Notifier
}

func NewPublisher(store *storage.Store, broadcaster *Broadcaster, notifier *Notifier) Publisher {
	return &publisher{
		store:       store,
		broadcaster: broadcaster,
		notifier:    notifier,
	}
}

// Publish journals the event, fans it out to stream subscribers and hands
// it to the webhook notifier.
func (p *publisher) Publish(ctx context.Context, event types.Event) {
	log := logging.GetFromContext(ctx)

	payload, err := Marshal(event)
	if err != nil {
		log.Error("could not marshal event", "event_type", event.EventType(), "err", err.Error())
		return
	}

	eventID, err := p.store.RecordEvent(ctx, event.EventType(), string(payload), time.Now().UTC())
	if err != nil {
		// the journal is best effort; live subscribers still get the event
		log.Error("could not journal event", "event_type", event.EventType(), "err", err.Error())
	}

	p.broadcaster.Publish(Envelope{
		EventID: eventID,
		Type:    event.EventType(),
		Payload: payload,
	})

	if p.notifier != nil {
		go p.notifier.Send(context.WithoutCancel(ctx), event)
	}
}
