package events

import (
	"encoding/json"
	"sync"

	"github.com/esDesler/smart-home-inventory-system/internal/pkg/metrics"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
)

const minQueueSize = 10

// Envelope is a marshaled event as it travels to subscribers. EventID refers
// to the journaled row so stream clients can resume after a reconnect.
type Envelope struct {
	EventID uint
	Type    string
	Payload []byte
}

// Subscriber consumes events from its own bounded queue.
type Subscriber struct {
	ch chan Envelope
}

func (s *Subscriber) Events() <-chan Envelope {
	return s.ch
}

// Broadcaster fans events out to all subscribers. Queues are bounded and
// lossy: when a subscriber falls behind, its oldest buffered event is
// dropped to make room. Publishing never blocks.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	queueSize   int
}

func NewBroadcaster(queueSize int) *Broadcaster {
	if queueSize < minQueueSize {
		queueSize = minQueueSize
	}

	return &Broadcaster{
		subscribers: map[*Subscriber]struct{}{},
		queueSize:   queueSize,
	}
}

func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan Envelope, b.queueSize)}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	metrics.StreamSubscribers.Inc()

	return sub
}

func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, found := b.subscribers[sub]; !found {
		return
	}

	delete(b.subscribers, sub)
	close(sub.ch)

	metrics.StreamSubscribers.Dec()
}

// Publish enqueues the envelope on every subscriber queue, evicting the
// oldest buffered event from queues that are full.
func (b *Broadcaster) Publish(env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		select {
		case sub.ch <- env:
			continue
		default:
		}

		select {
		case <-sub.ch:
			metrics.EventsDropped.Inc()
		default:
		}

		select {
		case sub.ch <- env:
		default:
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subscribers)
}

// Marshal renders an event as the flat JSON object subscribers receive,
// with the discriminating type field injected.
func Marshal(event types.Event) ([]byte, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	err = json.Unmarshal(b, &fields)
	if err != nil {
		return nil, err
	}

	fields["type"] = event.EventType()

	return json.Marshal(fields)
}
