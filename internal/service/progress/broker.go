// Package progress provides an in-process pub/sub broker for transcode
// progress events.
package progress

import (
	"sync"

	"github.com/nukevideo/nukevideo/internal/models"
)

// Event is one progress update for a stream.
type Event struct {
	MediaItemID models.ULID `json:"media_item_id"`
	StreamID    models.ULID `json:"stream_id"`
	Percent     int         `json:"percent"`
}

// subscriberBuffer is the per-subscriber channel capacity. Publish never
// blocks, slow subscribers drop events rather than stalling a transcode.
const subscriberBuffer = 16

// Broker fans progress events out to per-item subscribers.
type Broker struct {
	mu   sync.RWMutex
	subs map[models.ULID]map[chan Event]struct{}
}

// NewBroker creates a Broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[models.ULID]map[chan Event]struct{}),
	}
}

// Subscribe registers interest in one media item's progress. The returned
// cancel function must be called to release the subscription.
func (b *Broker) Subscribe(itemID models.ULID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[itemID] == nil {
		b.subs[itemID] = make(map[chan Event]struct{})
	}
	b.subs[itemID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[itemID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(b.subs, itemID)
				}
			}
		}
	}
	return ch, cancel
}

// Publish delivers an event to the item's subscribers without blocking.
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[event.MediaItemID] {
		select {
		case ch <- event:
		default:
			// Subscriber is not keeping up, drop the event.
		}
	}
}

// SubscriberCount reports how many subscriptions an item currently has.
func (b *Broker) SubscriberCount(itemID models.ULID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[itemID])
}
