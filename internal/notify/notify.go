// Package notify fans out change notifications, one logical topic per
// directory document id, to the host binding.
package notify

import (
	"sync"
	"time"

	"github.com/tonimelisma/alipan-go/internal/metrics"
)

// RootsTopic is signaled when the set of roots changes (drive ids resolved,
// login, logout).
const RootsTopic = "roots"

// subscriberBuffer is how many events a slow subscriber may lag behind
// before further events to it are dropped.
const subscriberBuffer = 64

// Event says that the listing behind Topic changed and should be queried
// again.
type Event struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier is the publishing side, consumed by the facade.
type Notifier interface {
	Notify(topic string)
}

// Broadcaster delivers every event to every subscriber whose filter matches.
// Publish never blocks: events for a full subscriber are dropped, which is
// safe because an event only means "query again".
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan Event]string // channel -> topic filter ("" = all)
	now  func() time.Time
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[chan Event]string),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber for one topic, or every topic when topic
// is empty. The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe(topic string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = topic
	b.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		if ch == sub {
			delete(b.subs, ch)
			close(ch)

			return
		}
	}
}

// Notify publishes an event for topic.
func (b *Broadcaster) Notify(topic string) {
	ev := Event{Topic: topic, Timestamp: b.now()}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, filter := range b.subs {
		if filter != "" && filter != topic {
			continue
		}

		select {
		case ch <- ev:
			metrics.RecordNotification(true)
		default:
			metrics.RecordNotification(false)
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}
