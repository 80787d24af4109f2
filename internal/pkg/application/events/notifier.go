package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
	"golang.org/x/sys/unix"
	yaml "gopkg.in/yaml.v2"
)

type SubscriberConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NotificationConfig struct {
	Type        string             `yaml:"type"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
}

type Config struct {
	Notifications []NotificationConfig `yaml:"notifications"`
}

func LoadConfig(r io.Reader) (*Config, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(b, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not parse notification config: %w", err)
	}

	return cfg, nil
}

// Notifier pushes alert events to external subscriber endpoints as
// cloudevents. Delivery is best effort.
type Notifier struct {
	subscribers map[string][]SubscriberConfig
}

func NewNotifier(cfg *Config) *Notifier {
	n := &Notifier{
		subscribers: map[string][]SubscriberConfig{},
	}

	if cfg != nil {
		for _, notification := range cfg.Notifications {
			n.subscribers[notification.Type] = notification.Subscribers
		}
	}

	return n
}

func (n *Notifier) Send(ctx context.Context, event types.Event) {
	subscribers, found := n.subscribers[event.EventType()]
	if !found || len(subscribers) == 0 {
		return
	}

	log := logging.GetFromContext(ctx)

	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		log.Error("failed to create cloudevents client", "err", err.Error())
		return
	}

	now := time.Now().UTC()

	ce := cloudevents.NewEvent()
	ce.SetID(fmt.Sprintf("%s:%d", event.EventType(), now.UnixNano()))
	ce.SetTime(now)
	ce.SetSource("github.com/esDesler/smart-home-inventory-system")
	ce.SetType("inventory." + event.EventType())

	err = ce.SetData(cloudevents.ApplicationJSON, event)
	if err != nil {
		log.Error("failed to set cloudevent data", "err", err.Error())
		return
	}

	for _, subscriber := range subscribers {
		ctxWithTarget := cloudevents.ContextWithTarget(ctx, subscriber.Endpoint)

		result := c.Send(ctxWithTarget, ce)
		if cloudevents.IsUndelivered(result) || errors.Is(result, unix.ECONNREFUSED) {
			log.Error("failed to send event to subscriber", "endpoint", subscriber.Endpoint, "err", result.Error())
		}
	}
}
